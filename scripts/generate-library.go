//go:build ignore

// Command generate-library writes a synthetic book library for manual
// testing and benchmarking.
// Usage: go run scripts/generate-library.go -books 50 -output testdata/library
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

var (
	numBooks  = flag.Int("books", 50, "Number of books to generate")
	outputDir = flag.String("output", "testdata/library", "Output directory")
	chapters  = flag.Int("chapters", 8, "Chapters per book")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var subjects = []string{
	"Distributed Systems", "Relational Databases", "Compilers",
	"Operating Systems", "Machine Learning", "Network Protocols",
	"Functional Programming", "Information Retrieval", "Cryptography",
	"Concurrency",
}

var topics = []string{
	"consistency models", "query optimization", "lexical analysis",
	"page replacement", "gradient descent", "congestion control",
	"lazy evaluation", "inverted indexes", "key exchange",
	"lock-free data structures", "replication", "garbage collection",
	"caching strategies", "fault tolerance", "schema design",
}

var sentenceForms = []string{
	"This chapter examines %s in depth and relates it to %s.",
	"A common misconception about %s is that it subsumes %s entirely.",
	"Practical systems combine %s with %s to balance throughput and latency.",
	"The trade-offs of %s become apparent once %s enters the picture.",
	"We formalize %s before turning to its interaction with %s.",
	"Production deployments tune %s carefully, since %s amplifies any mistake.",
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "creating %s: %v\n", *outputDir, err)
		os.Exit(1)
	}

	for i := 0; i < *numBooks; i++ {
		subject := subjects[i%len(subjects)]
		title := fmt.Sprintf("%s Vol. %d", subject, i/len(subjects)+1)
		name := strings.ToLower(strings.ReplaceAll(subject, " ", "-"))
		path := filepath.Join(*outputDir, fmt.Sprintf("%s-%02d.md", name, i))

		if err := os.WriteFile(path, []byte(renderBook(rng, title)), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "writing %s: %v\n", path, err)
			os.Exit(1)
		}
	}

	fmt.Printf("wrote %d book(s) to %s\n", *numBooks, *outputDir)
}

func renderBook(rng *rand.Rand, title string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "---\ntitle: %s\nauthor: Test Author\nyear: %d\n---\n\n", title, 1990+rng.Intn(36))
	fmt.Fprintf(&b, "# %s\n\n", title)

	for ch := 1; ch <= *chapters; ch++ {
		topic := topics[rng.Intn(len(topics))]
		fmt.Fprintf(&b, "## Chapter %d: %s\n\n", ch, strings.Title(topic))
		for p := 0; p < 3+rng.Intn(3); p++ {
			b.WriteString(renderParagraph(rng, topic))
			b.WriteString("\n\n")
		}
	}
	return b.String()
}

func renderParagraph(rng *rand.Rand, topic string) string {
	var b strings.Builder
	for s := 0; s < 4+rng.Intn(4); s++ {
		other := topics[rng.Intn(len(topics))]
		form := sentenceForms[rng.Intn(len(sentenceForms))]
		fmt.Fprintf(&b, form+" ", topic, other)
	}
	return strings.TrimSpace(b.String())
}
