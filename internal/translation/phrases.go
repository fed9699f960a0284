package translation

import (
	"sort"
	"strings"
)

// Common classroom phrases, used when every network provider has failed.
var phrasebook = map[string]map[string]string{
	"hello": {
		"hi": "नमस्ते", "ta": "வணக்கம்", "te": "హలో", "kn": "ಹಲೋ", "ml": "ഹലോ",
		"bn": "হ্যালো", "gu": "હેલો", "mr": "हॅलो", "pa": "ਸਤਿ ਸ੍ਰੀ ਅਕਾਲ",
	},
	"thank you": {
		"hi": "धन्यवाद", "ta": "நன்றி", "te": "ధన్యవాదాలు", "kn": "ಧನ್ಯವಾದಗಳು", "ml": "നന്ദി",
		"bn": "ধন্যবাদ", "gu": "આભાર", "mr": "धन्यवाद", "pa": "ਧੰਨਵਾਦ",
	},
	"good morning": {
		"hi": "सुप्रभात", "ta": "காலை வணக்கம்", "te": "శుభోదయం", "kn": "ಶುಭೋದಯ", "ml": "സുപ്രഭാതം",
		"bn": "সুপ্রভাত", "gu": "સુપ્રભાત", "mr": "सुप्रभात", "pa": "ਸਤਿ ਸ਼੍ਰੀ ਅਕਾਲ",
	},
	"welcome": {
		"hi": "स्वागत है", "ta": "வரவேற்கிறோம்", "te": "స్వాగతం", "kn": "ಸ್ವಾಗತ", "ml": "സ്വാഗതം",
		"bn": "স্বাগতম", "gu": "સ્વાગત છે", "mr": "स्वागत आहे", "pa": "ਜੀ ਆਇਆਂ ਨੂੰ",
	},
	"please": {
		"hi": "कृपया", "ta": "தயவு செய்து", "te": "దయచేసి", "kn": "ದಯವಿಟ್ಟು", "ml": "ദയവായി",
		"bn": "অনুগ্রহ করে", "gu": "કૃપા કરીને", "mr": "कृपया", "pa": "ਕਿਰਪਾ ਕਰਕੇ",
	},
	"excuse me": {
		"hi": "क्षमा करें", "ta": "மன்னிக்கவும்", "te": "క్షమించండి", "kn": "ಕ್ಷಮಿಸಿ", "ml": "ക്ഷമിക്കണം",
		"bn": "দুঃখিত", "gu": "માફ કરજો", "mr": "माफ करा", "pa": "ਮਾਫ਼ ਕਰਨਾ",
	},
	"yes": {
		"hi": "हाँ", "ta": "ஆம்", "te": "అవును", "kn": "ಹೌದು", "ml": "അതെ",
		"bn": "হ্যাঁ", "gu": "હા", "mr": "होय", "pa": "ਹਾਂ",
	},
	"no": {
		"hi": "नहीं", "ta": "இல்லை", "te": "లేదు", "kn": "ಇಲ್ಲ", "ml": "ഇല്ല",
		"bn": "না", "gu": "ના", "mr": "नाही", "pa": "ਨਹੀਂ",
	},
	"understand": {
		"hi": "समझना", "ta": "புரிந்து கொள்ள", "te": "అర్థం చేసుకోవాలి", "kn": "ಅರ್ಥಮಾಡಿಕೊಳ್ಳಿ", "ml": "മനസ്സിലാക്കാൻ",
		"bn": "বুঝতে", "gu": "સમજવું", "mr": "समजणे", "pa": "ਸਮਝਣਾ",
	},
	"question": {
		"hi": "प्रश्न", "ta": "கேள்வி", "te": "ప్రశ్న", "kn": "ಪ್ರಶ್ನೆ", "ml": "ചോദ്യം",
		"bn": "প্রশ্ন", "gu": "પ્રશ્ન", "mr": "प्रश्न", "pa": "ਸਵਾਲ",
	},
	"answer": {
		"hi": "उत्तर", "ta": "பதில்", "te": "జవాబు", "kn": "ಉತ್ತರ", "ml": "ഉത്തരം",
		"bn": "উত্তর", "gu": "જવાબ", "mr": "उत्तर", "pa": "ਜਵਾਬ",
	},
}

// LookupPhrase matches text exactly (case-insensitive, trimmed) against the phrasebook.
func LookupPhrase(text, target string) (string, bool) {
	byLang, ok := phrasebook[strings.ToLower(strings.TrimSpace(text))]
	if !ok {
		return "", false
	}
	out, ok := byLang[target]
	return out, ok
}

// Phrases lists the phrasebook keys.
func Phrases() []string {
	out := make([]string, 0, len(phrasebook))
	for k := range phrasebook {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// UntranslatedMarker wraps text to signal that no translation was available.
func UntranslatedMarker(text string) string {
	return "[" + text + "]"
}
