package chat

// TranslationSource is the attribution stamped on every translation.
const TranslationSource = "ConvoSense"

// Explanation carries one rendering for the sender and one for the recipient.
type Explanation struct {
	SourceLanguageText string `json:"sourceLanguageText" bson:"sourceLanguageText" jsonschema:"description=Explanation written in the source language for the sender"`
	TargetLanguageText string `json:"targetLanguageText" bson:"targetLanguageText" validate:"required" jsonschema:"description=Explanation written in the target language for the recipient"`
}

// LearningNugget highlights one phrase for language learners.
type LearningNugget struct {
	Phrase      string      `json:"phrase" bson:"phrase" validate:"required" jsonschema:"description=A key phrase from the original text"`
	Translation string      `json:"translation" bson:"translation" validate:"required" jsonschema:"description=The phrase translated into the target language"`
	Explanation Explanation `json:"explanation" bson:"explanation" jsonschema:"description=Short grammar or vocabulary note about the phrase"`
}

// TranslationDetail is the translation of a message into one recipient language.
type TranslationDetail struct {
	TranslatedText     string         `json:"translatedText" bson:"translatedText" validate:"required" jsonschema:"description=The text translated into the target language in its native script"`
	Source             string         `json:"source" bson:"source" jsonschema:"description=Attribution label for the translation"`
	ContextExplanation Explanation    `json:"contextExplanation" bson:"contextExplanation" jsonschema:"description=Nuances idioms or cultural references and how they were handled"`
	ToneExplanation    Explanation    `json:"toneExplanation" bson:"toneExplanation" jsonschema:"description=Tone of the translated message and how it fits cultural norms"`
	Formality          string         `json:"formality" bson:"formality" validate:"required" jsonschema:"description=Formality level as a single word in the target language"`
	LearningNugget     LearningNugget `json:"learningNugget" bson:"learningNugget" jsonschema:"description=A small lesson about one phrase of the message"`
}
