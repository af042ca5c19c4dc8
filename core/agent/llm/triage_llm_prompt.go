package llm

import "strings"

const emailPlaceholder = "{email_content}"

const classifyPromptTemplate = `You must analyse the email below and return a JSON object that strictly follows the structure described afterwards.

Before producing the JSON, follow these instructions:
1. Classify the email as "Productive" or "Unproductive":
   - "Productive": emails that require a specific action or reply (requests, questions, case updates).
   - "Unproductive": emails that need no action (congratulations, thanks, spam).
2. Detect the language of the email and answer in that same language, especially in "suggested_response".
3. Identify the main topic of the email in a few words.
4. Rate the tone of the email as "Positive", "Negative" or "Neutral".
5. Do not make unsupported assumptions; rely only on the content of the email.
6. Set "confidence_score" between 0.0 and 1.0 to reflect how certain you are of the classification.
7. Return only the JSON, without explanations, extra text or any other formatting.

Email to analyse:
---
{email_content}
---

The output JSON must have exactly these fields:
- "classification": the category ("Productive" or "Unproductive").
- "confidence_score": a number between 0.0 and 1.0.
- "key_topic": a word or short phrase with the main topic (e.g. "Payment request", "Congratulations").
- "sentiment": the prevailing tone ("Positive", "Negative" or "Neutral").
- "suggested_response":
    - if "Productive", a short professional reply addressing the request or question;
    - if "Unproductive", a short polite thank-you reply (e.g. "Thanks for the information!").

Return only the JSON object, with no text, markdown or explanation around it.
`

// BuildPrompt embeds emailText verbatim into the classification template.
func BuildPrompt(emailText string) string {
	return strings.Replace(classifyPromptTemplate, emailPlaceholder, emailText, 1)
}
