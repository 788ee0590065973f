package moderation

// DefaultWords is the built-in censor list applied when the operator does
// not provide one. Deployments are expected to extend it via configuration.
var DefaultWords = []string{
	"asshole",
	"bastard",
	"bitch",
	"cunt",
	"dickhead",
	"fuck",
	"motherfucker",
	"shit",
	"slut",
	"whore",
}
