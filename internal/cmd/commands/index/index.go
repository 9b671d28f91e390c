package index

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp-forge/bulkflow/internal/cmd/base"
	blevescroll "github.com/hashicorp-forge/bulkflow/pkg/scroll/bleve"
)

const defaultBatchSize = 500

type Command struct {
	*base.Command

	flagConfig     string
	flagRepository string
	flagBatchSize  int
}

func (c *Command) Synopsis() string {
	return "Load documents into a repository index"
}

func (c *Command) Help() string {
	return `Usage: bulkflow index [options] <file.jsonl>

  Index documents from a JSON lines file ("-" reads stdin). Every line is
  an object with a string "id" field; the other fields are indexed and can
  be queried by bulk commands using the document scroller.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("index", flag.ContinueOnError))
	f.ConfigVar(&c.flagConfig)
	f.StringVar(&c.flagRepository, "repository", blevescroll.DefaultRepository, "Repository to index into.")
	f.IntVar(&c.flagBatchSize, "batch-size", defaultBatchSize, "Documents per index batch.")
	return f
}

func (c *Command) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if f.NArg() != 1 {
		c.UI.Error("expected exactly one input file")
		return 1
	}

	cfg, err := c.LoadConfig(c.flagConfig)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error loading config: %v", err))
		return 1
	}

	var in io.Reader = os.Stdin
	if path := f.Arg(0); path != "-" {
		file, err := os.Open(path)
		if err != nil {
			c.UI.Error(fmt.Sprintf("error opening %s: %v", path, err))
			return 1
		}
		defer file.Close()
		in = file
	}

	docs, err := base.OpenDocuments(cfg, c.Log)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	defer func() { _ = docs.Close() }()

	n, err := Load(context.Background(), in, docs, c.flagRepository, c.flagBatchSize)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error indexing after %d documents: %v", n, err))
		return 1
	}
	c.UI.Info(fmt.Sprintf("Indexed %d documents into %s", n, c.flagRepository))
	return 0
}

// Indexer is the part of the document service Load needs.
type Indexer interface {
	IndexBatch(ctx context.Context, repository string, docs map[string]any) error
}

// Load indexes every JSON line of r and returns the number of documents
// indexed.
func Load(ctx context.Context, r io.Reader, idx Indexer, repository string, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4<<20)

	var (
		total int
		line  int
		batch = make(map[string]any, batchSize)
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := idx.IndexBatch(ctx, repository, batch); err != nil {
			return err
		}
		total += len(batch)
		batch = make(map[string]any, batchSize)
		return nil
	}

	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}

		var doc map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &doc); err != nil {
			return total, fmt.Errorf("line %d: %w", line, err)
		}
		id, ok := doc["id"].(string)
		if !ok || id == "" {
			return total, fmt.Errorf("line %d: missing string id", line)
		}
		delete(doc, "id")
		batch[id] = doc

		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return total, err
	}
	return total, flush()
}
