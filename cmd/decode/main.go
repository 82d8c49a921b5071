package main

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stanfordnlp/phrasal-sub010/config"
	"github.com/stanfordnlp/phrasal-sub010/decoder"
	"github.com/stanfordnlp/phrasal-sub010/engine"
	"github.com/stanfordnlp/phrasal-sub010/util"
)

var (
	configPath    string
	inputPath     string
	outputPath    string
	referencePath string
	nbestSize     int
	distinct      bool
	dumpTrace     bool
)

var rootCmd = &cobra.Command{
	Use:   "decode [text...]",
	Short: "Translate text with the phrase-based cube pruning decoder",
	Long: `Translate text given as arguments, read from --input one sentence per
line, or typed interactively when neither is given.`,
	RunE: run,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "Decoder configuration file")
	rootCmd.Flags().StringVarP(&inputPath, "input", "i", "", "Input file, one sentence per line")
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file (default stdout)")
	rootCmd.Flags().StringVarP(&referencePath, "reference", "r", "", "Reference translations aligned with --input; prints a diff per line")
	rootCmd.Flags().IntVarP(&nbestSize, "nbest", "n", 0, "Write an n-best list of this size instead of the 1-best")
	rootCmd.Flags().BoolVar(&distinct, "distinct", false, "Drop n-best entries with a repeated target string")
	rootCmd.Flags().BoolVar(&dumpTrace, "dump", false, "Print the rule-by-rule derivation trace to stderr")
}

func run(cmd *cobra.Command, args []string) error {
	path := configPath
	if !util.FileExists(path) {
		if cmd.Flags().Changed("config") {
			return fmt.Errorf("config file not found at %s", path)
		}
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	e, err := engine.Load(cfg, logger, nil)
	if err != nil {
		return err
	}

	if len(args) > 0 {
		return translateLine(os.Stdout, e, strings.Join(args, " "), 0, "")
	}
	if inputPath != "" {
		return batch(e)
	}

	fmt.Println("Enter text to translate (Ctrl+D to exit):")
	scanner := bufio.NewScanner(os.Stdin)
	id := 0
	for scanner.Scan() {
		text := scanner.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		if err := translateLine(os.Stdout, e, text, id, ""); err != nil {
			return err
		}
		id++
	}
	return scanner.Err()
}

func batch(e *engine.Engine) error {
	inFile, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer inFile.Close()

	var refs []string
	if referencePath != "" {
		refs, err = readLines(referencePath)
		if err != nil {
			return err
		}
	}

	out := os.Stdout
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	}
	writer := bufio.NewWriter(out)
	defer writer.Flush()

	report := newDiffReport()
	scanner := bufio.NewScanner(inFile)
	count, failed := 0, 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		ref := ""
		if count < len(refs) {
			ref = refs[count]
		}
		ok, err := translateBatchLine(writer, e, line, count, ref, report)
		if err != nil {
			return err
		}
		if !ok {
			failed++
		}
		count++
		if count%1000 == 0 {
			log.Printf("Processed %d lines...", count)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	if referencePath != "" {
		log.Printf("Reference: %s", report.Summary())
	}
	log.Printf("Done. Processed %d lines, %d failed.", count, failed)
	return nil
}

// translateBatchLine writes one output line per input line. A failed
// sentence leaves an empty line so the output stays aligned.
func translateBatchLine(w io.Writer, e *engine.Engine, line string, id int, ref string,
	report *diffReport) (bool, error) {
	if nbestSize > 0 {
		list, ok := e.NBest(line, id, nbestSize, distinct)
		if !ok {
			return false, nil
		}
		if err := writeNBest(w, id, list); err != nil {
			return false, err
		}
		if ref != "" {
			report.Add(os.Stderr, id, ref, util.Detokenize(list[0].Target))
		}
		return true, nil
	}

	tr, ok := e.Translate(line, id)
	if !ok {
		_, err := fmt.Fprintln(w)
		return false, err
	}
	if _, err := fmt.Fprintln(w, util.Detokenize(tr.Target)); err != nil {
		return false, err
	}
	if ref != "" {
		report.Add(os.Stderr, id, ref, util.Detokenize(tr.Target))
	}
	if dumpTrace {
		return true, decoder.Dump(os.Stderr, tr.Derivation)
	}
	return true, nil
}

func translateLine(w io.Writer, e *engine.Engine, text string, id int, ref string) error {
	_, err := translateBatchLine(w, e, text, id, ref, newDiffReport())
	return err
}

// writeNBest prints entries as "id ||| target ||| features ||| score".
func writeNBest(w io.Writer, id int, list []*decoder.Translation) error {
	for _, tr := range list {
		feats := make([]string, 0, len(tr.Features))
		for _, fv := range tr.Features {
			feats = append(feats, fmt.Sprintf("%s=%g", fv.Name, fv.Value))
		}
		if _, err := fmt.Fprintf(w, "%d ||| %s ||| %s ||| %g\n",
			id, strings.Join(tr.Target, " "), strings.Join(feats, " "), tr.Score); err != nil {
			return err
		}
	}
	return nil
}

func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read references: %w", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return lines, nil
}
