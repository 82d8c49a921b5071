package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/stanfordnlp/phrasal-sub010/feat"
	"github.com/stanfordnlp/phrasal-sub010/util"
)

func main() {
	inputPath := flag.String("input", "", "Path to the target-language corpus, one sentence per line")
	outputPath := flag.String("output", "lm.txt", "Path to save the n-gram counts")
	order := flag.Int("order", 3, "Highest n-gram order to count")
	tokenize := flag.Bool("tokenize", true, "Split punctuation from words before counting")
	flag.Parse()

	if *inputPath == "" {
		fmt.Println("Please provide an input file using -input flag")
		os.Exit(1)
	}

	fmt.Printf("Reading corpus from %s...\n", *inputPath)
	file, err := os.Open(*inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening input file: %v\n", err)
		os.Exit(1)
	}
	defer file.Close()

	lm := feat.NewLanguageModel(*order)
	scanner := bufio.NewScanner(file)

	// Set buffer size to handle potentially long lines
	const maxCapacity = 1024 * 1024
	buf := make([]byte, maxCapacity)
	scanner.Buffer(buf, maxCapacity)

	sentences := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var words []string
		if *tokenize {
			words = util.Tokenize(line)
		} else {
			words = strings.Fields(line)
		}
		lm.AddSentence(words)
		sentences++
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error scanning file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Counted %d sentences, %d distinct n-grams up to order %d.\n", sentences, len(lm.Counts), lm.Order)
	if err := lm.Save(*outputPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing counts: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Language model saved to %s\n", *outputPath)
}
