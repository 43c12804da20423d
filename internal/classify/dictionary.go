package classify

// commonWords mixes high-frequency English words with signage vocabulary.
// A hit on any of these is a strong signal that the recognizer read real
// text rather than noise.
var commonWords = wordSet(
	"the", "be", "to", "of", "and", "a", "in", "that", "have", "it",
	"for", "not", "on", "with", "he", "as", "you", "do", "at", "this",
	"but", "his", "by", "from", "they", "we", "say", "her", "she", "or",
	"an", "will", "my", "one", "all", "would", "there", "their", "what",
	"so", "up", "out", "if", "about", "who", "get", "which", "go", "me",
	"when", "make", "can", "like", "time", "no", "just", "him", "know",
	"take", "people", "into", "year", "your", "good", "some", "could",
	"them", "see", "other", "than", "then", "now", "look", "only", "come",
	"its", "over", "think", "also", "back", "after", "use", "two", "how",
	"our", "work", "first", "well", "way", "even", "new", "want", "because",
	"any", "these", "give", "day", "most", "us",
	// Signage and control words.
	"exit", "enter", "entrance", "open", "closed", "push", "pull", "stop",
	"door", "stairs", "floor", "room", "street", "road", "station",
	"caution", "danger", "warning", "fire", "help", "emergency", "keep",
	"left", "right", "north", "south", "east", "west", "up", "down",
	"men", "women", "toilet", "restroom", "water", "hot", "cold", "wet",
	"press", "hold", "wait", "walk", "sale", "free", "welcome", "please",
	"information", "hour", "hours", "number",
)

func wordSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
