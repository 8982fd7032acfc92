package ai

const sentimentSystemPrompt = "You classify the sentiment of chat messages. Answer with the sentiment (positive, negative or neutral) and a confidence between 0 and 1. Return only the JSON object described by the schema."

const sentimentUserPrompt = "Message: {{message}}"

const translateSystemPrompt = `You are a language and culture expert. Translate chat messages from {{source}} to {{target}} and explain what a reader needs to communicate accurately and politely.

Text produced in {{target}} must use the native script of {{target}}.

Provide:
1. translatedText: a direct translation into {{target}}.
2. contextExplanation: nuances, idioms or cultural references and how they were handled. If there are none, say the translation is direct. Write sourceLanguageText in {{source}} for the sender and targetLanguageText in {{target}} for the recipient.
3. toneExplanation: the tone of the translated message (friendly, formal, direct, polite...) and how it fits cultural norms. Same two renderings.
4. formality: informal, neutral or formal, written as a single word in {{target}}.
5. learningNugget: one key phrase from the message, its translation, and a short explanation of its grammar or vocabulary in both languages.
6. source: ConvoSense.

Return only the JSON object described by the schema.`

const translateUserPrompt = "Text to translate: {{text}}"
