package signaling

// Room ids are three words, one from each list, joined by hyphens.

var adjectives = []string{
	"brisk", "calm", "clever", "curious", "eager", "gentle", "honest", "lucid", "nimble", "patient",
	"quiet", "rapid", "steady", "sharp", "tidy", "vivid", "witty", "bold", "bright", "careful",
	"crisp", "daring", "fluent", "frank", "keen", "lively", "mellow", "neat", "plucky", "sunny",
}

var concepts = []string{
	"array", "binary", "bitset", "branch", "buffer", "cache", "cursor", "deque", "graph", "hashmap",
	"heap", "index", "lambda", "ledger", "matrix", "mutex", "offset", "parser", "pointer", "queue",
	"record", "regex", "schema", "socket", "stack", "string", "thread", "token", "trie", "vector",
}

var creatures = []string{
	"badger", "beaver", "bison", "crane", "dingo", "falcon", "ferret", "gecko", "heron", "ibis",
	"jackal", "koala", "lemur", "lynx", "marten", "narwhal", "ocelot", "otter", "panda", "puffin",
	"quokka", "raven", "salmon", "tapir", "toucan", "urchin", "walrus", "wombat", "yak", "zebra",
}
