package backend

import "strings"

// Intent labels produced by the keyword engine.
const (
	IntentHealth  = "health"
	IntentSchemes = "schemes"
	IntentClimate = "climate"
	IntentGeneral = "general"
)

type intentRule struct {
	intent   string
	keywords []string
}

// Checked in order; the first rule with a matching keyword wins.
var intentRules = []intentRule{
	{IntentHealth, []string{
		"fever", "temperature", "sick", "pain", "headache", "cold",
		"cough", "vomit", "diarrhea", "injury", "wound", "burn",
		"बुखार", "दर्द", "सिरदर्द", "खांसी", "ठंड",
		"జ్వరం", "నొప్పి", "తలనొప్పి", "దగ్గు",
	}},
	{IntentSchemes, []string{
		"scheme", "yojana", "application", "benefit", "subsidy",
		"pension", "ration", "card", "apply", "form", "government",
		"योजना", "आवेदन", "लाभ", "पेंशन", "राशन",
		"పథకం", "దరఖాస్తు", "ప్రయోజనం", "పెన్షన్",
	}},
	{IntentClimate, []string{
		"heatwave", "flood", "warning", "rain", "storm", "cyclone",
		"drought", "hot", "weather", "disaster", "alert", "emergency",
		"गर्मी", "बाढ़", "चेतावनी", "बारिश", "तूफान",
		"వేడి", "వరద", "హెచ్చరిక", "వర్షం", "తుఫాను",
	}},
}

// DetectIntent classifies text by substring keyword match.
func DetectIntent(text string) string {
	lower := strings.ToLower(text)
	for _, rule := range intentRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.intent
			}
		}
	}
	return IntentGeneral
}

var guidanceTexts = map[string]map[string]string{
	IntentHealth: {
		"en": "General Health Advice:\n1. Monitor symptoms carefully\n2. Let patient rest\n3. Keep hydrated\n4. Consult doctor for serious symptoms\n5. Maintain hygiene",
		"hi": "सामान्य स्वास्थ्य सलाह:\n1. लक्षणों की जांच करें\n2. रोगी को आराम दें\n3. हाइड्रेटेड रखें\n4. गंभीर लक्षणों के लिए तुरंत डॉक्टर से संपर्क करें\n5. साफ-सफाई बनाए रखें",
		"te": "సాధారణ ఆరోగ్య సలహా:\n1. లక్షణాలను తనిఖీ చేయండి\n2. రోగిని విశ్రాంతి తీసుకోనివ్వండి\n3. హైడ్రేటెడ్ గా ఉంచండి\n4. తీవ్రమైన లక్షణాలకు వెంటనే వైద్యుడిని సంప్రదించండి\n5. పరిశుభ్రతను కొనసాగించండి",
	},
	IntentSchemes: {
		"en": "Government Schemes and Application Process:\n1. Visit nearest Jan Seva Kendra\n2. Bring required documents (Aadhaar, ID proof)\n3. Fill application form\n4. Can also apply on government website",
		"hi": "सरकारी योजनाएं और आवेदन प्रक्रिया:\n1. नजदीकी जन सेवा केंद्र पर जाएं\n2. आवश्यक दस्तावेज ले जाएं (आधार, पहचान पत्र)\n3. आवेदन फॉर्म भरें\n4. सरकारी वेबसाइट पर भी आवेदन कर सकते हैं",
		"te": "ప్రభుత్వ పథకాలు మరియు దరఖాస్తు ప్రక్రియ:\n1. సమీప జనసేవా కేంద్రానికి వెళ్లండి\n2. అవసరమైన పత్రాలు తీసుకురండి (ఆధార్, గుర్తింపు)\n3. దరఖాస్తు ఫారమ్ పూరించండి\n4. ప్రభుత్వ వెబ్‌సైట్‌లో కూడా దరఖాస్తు చేసుకోవచ్చు",
	},
	IntentClimate: {
		"en": "Weather Safety:\n1. Follow official warnings on radio and TV\n2. Keep drinking water and a torch ready\n3. Move to higher ground if flooding starts\n4. Stay indoors during storms and peak heat",
		"hi": "मौसम सुरक्षा:\n1. रेडियो और टीवी पर सरकारी चेतावनी सुनें\n2. पीने का पानी और टॉर्च तैयार रखें\n3. बाढ़ आने पर ऊंचे स्थान पर जाएं\n4. तूफान और तेज गर्मी में घर के अंदर रहें",
		"te": "వాతావరణ భద్రత:\n1. రేడియో మరియు టీవీలో అధికారిక హెచ్చరికలను పాటించండి\n2. తాగునీరు మరియు టార్చ్ సిద్ధంగా ఉంచండి\n3. వరద వస్తే ఎత్తైన ప్రదేశానికి వెళ్లండి\n4. తుఫాను మరియు తీవ్రమైన వేడి సమయంలో ఇంట్లోనే ఉండండి",
	},
	IntentGeneral: {
		"en": "I can help with health and first aid, government schemes, and weather safety. Please ask about one of these.",
		"hi": "मैं स्वास्थ्य और प्राथमिक उपचार, सरकारी योजनाओं और मौसम सुरक्षा में मदद कर सकता हूं। कृपया इनमें से किसी के बारे में पूछें।",
		"te": "నేను ఆరోగ్యం మరియు ప్రథమ చికిత్స, ప్రభుత్వ పథకాలు మరియు వాతావరణ భద్రతలో సహాయం చేయగలను. దయచేసి వీటిలో ఒకదాని గురించి అడగండి.",
	},
}

func guidanceFor(intent, language string) string {
	byLang := guidanceTexts[intent]
	if text, ok := byLang[language]; ok {
		return text
	}
	return byLang["en"]
}
