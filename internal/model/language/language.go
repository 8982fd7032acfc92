package language

// Language is a selectable chat language.
type Language struct {
	Code  string `json:"value"`
	Label string `json:"label"`
}

// UnknownLabel is returned for codes missing from the registry.
const UnknownLabel = "Unknown"

// Seed lists the languages offered at onboarding, in display order.
func Seed() []Language {
	return []Language{
		{Code: "en-US", Label: "English"},
		{Code: "es-ES", Label: "Spanish"},
		{Code: "fr-FR", Label: "French"},
		{Code: "de-DE", Label: "German"},
		{Code: "ja-JP", Label: "Japanese"},
		{Code: "zh-CN", Label: "Chinese"},
		{Code: "ru-RU", Label: "Russian"},
		{Code: "ar-SA", Label: "Arabic"},
		{Code: "pt-BR", Label: "Portuguese"},
		{Code: "hi-IN", Label: "Hindi"},
	}
}

// Registry is a static, read-only lookup of language codes.
type Registry struct {
	items  []Language
	labels map[string]string
}

// NewRegistry returns a Registry preloaded with items.
func NewRegistry(items []Language) *Registry {
	labels := make(map[string]string, len(items))
	for _, item := range items {
		labels[item.Code] = item.Label
	}
	return &Registry{items: append([]Language(nil), items...), labels: labels}
}

// Default is the registry built from Seed.
var Default = NewRegistry(Seed())

// List returns a copy of the registered languages.
func (r *Registry) List() []Language {
	return append([]Language(nil), r.items...)
}

// Label returns the display label for code, or UnknownLabel.
func (r *Registry) Label(code string) string {
	if label, ok := r.labels[code]; ok {
		return label
	}
	return UnknownLabel
}

// Supported reports whether code is registered.
func (r *Registry) Supported(code string) bool {
	_, ok := r.labels[code]
	return ok
}
