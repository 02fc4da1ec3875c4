package skill

import "fmt"

// HelpText is spoken on launch and on help. Line breaks are part of the text.
const HelpText = `This skill allows you to manage your Couch Potato movie
list. You can ask Couch Potato about the movies in your queue or add
new movies to it. Try asking "Is The Godfather on the list?". If it's not and you want to add
it, try saying "Add The Godfather"`

// Fixed responses.
const (
	CancelText    = "Goodbye."
	NoText        = "OK, I won't add it."
	AskTitleText  = "Which movie?"
	RepromptText  = "What would you like to do?"
	ConfirmPrompt = "Would you like me to add it?"
)

// Fallback speech for failures the handlers report to the endpoint.
const (
	InvalidPromptText   = "Sorry, I'm not sure what you're agreeing to."
	ProviderFailureText = "Sorry, I couldn't reach Couch Potato. Please try again later."
	GenericFailureText  = "Sorry, something went wrong."
)

func foundText(label string) string {
	return fmt.Sprintf("Yes, %s is on your list.", label)
}

func alreadyOnListText(label string) string {
	return fmt.Sprintf("%s is already on your list.", label)
}

func offerText(title, label string) string {
	return fmt.Sprintf("%s isn't on your list. Would you like me to add %s?", title, label)
}

func notFoundText(query string) string {
	return fmt.Sprintf("I couldn't find %s.", query)
}

func addedText(label string) string {
	return fmt.Sprintf("%s has been added to your list.", label)
}
