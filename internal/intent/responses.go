package intent

import "fmt"

// staticResponses holds the canned reply for every intent that bypasses
// synthesis.
var staticResponses = map[Intent]string{
	Greeting: "**Hello! 👋 Welcome to MedChat AI**\n\n" +
		"I'm your medical information assistant. I can help you with:\n\n" +
		"• Understanding symptoms and conditions\n" +
		"• General health information\n" +
		"• Treatment overviews\n\n" +
		"How can I assist you today?",
	Thanks: "**You're welcome! 😊**\n\n" +
		"I'm glad I could help. Feel free to ask if you have more health questions.\n\n" +
		"*Stay healthy!*",
	Goodbye: "**Goodbye! 👋 Take care!**\n\n" +
		"Remember to consult a healthcare professional for any urgent concerns.\n\n" +
		"*Wishing you good health!*",
	Identity: "**About MedChat AI**\n\n" +
		"I'm an AI-powered medical information assistant designed to help you understand health topics.\n\n" +
		"**What I can do:**\n" +
		"• Explain medical conditions and symptoms\n" +
		"• Provide general health information\n" +
		"• Offer wellness tips and guidance\n\n" +
		"**Important:** I provide educational information only. I cannot diagnose conditions or prescribe treatments. " +
		"Always consult a qualified healthcare provider for medical advice.",
	Reject: "**I specialize in medical topics only**\n\n" +
		"I'm designed to help with health-related questions such as:\n\n" +
		"• Symptoms and conditions\n" +
		"• Treatment information\n" +
		"• General health advice\n\n" +
		"Please ask a medical or health-related question.",
}

// StaticResponse returns the fixed reply for a non-medical intent.
//
// Medical questions are answered by the synthesizer, never from this table;
// passing [Medical] or an unknown intent is a programming error and panics.
func StaticResponse(i Intent) string {
	resp, ok := staticResponses[i]
	if !ok {
		panic(fmt.Sprintf("intent: no static response for intent %q", i))
	}
	return resp
}

// IsStatic reports whether i is answered from the static table.
func IsStatic(i Intent) bool {
	_, ok := staticResponses[i]
	return ok
}
