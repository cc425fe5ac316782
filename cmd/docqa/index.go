package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pss-rag/docqa/config"
	"github.com/pss-rag/docqa/internal/embedding"
	"github.com/pss-rag/docqa/internal/index"
	"github.com/pss-rag/docqa/internal/indexer"
	"github.com/pss-rag/docqa/internal/store"
)

// chunkLine is one JSONL record produced by the document extraction
// pipeline: chunk text plus the file it came from.
type chunkLine struct {
	Text       string `json:"text"`
	SourceFile string `json:"source_file"`
}

func indexCMD() *cobra.Command {
	var cfgPath string
	var loadPath string

	var cmd = &cobra.Command{
		Use:   "index",
		Short: "Rebuild the vector index from stored chunks",
		Long:  "Rebuild the vector index from the chunk store. With --load, first replace the stored chunks from a JSONL file of {text, source_file} records.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			ctx := context.Background()

			st, err := store.NewWithDSN(ctx, cfg.Storage.Postgres.DSN())
			if err != nil {
				return err
			}

			if loadPath != "" {
				chunks, err := readChunks(loadPath)
				if err != nil {
					return err
				}
				if err := st.ReplaceChunks(ctx, chunks); err != nil {
					return err
				}
				fmt.Printf("loaded %d chunks from %s\n", len(chunks), loadPath)
			}

			encoder := embedding.NewClient(cfg.Embedding.BaseURL, cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.Timeout)
			handle := index.NewHandle(nil)
			n, err := indexer.New(st, encoder, handle, cfg.Retrieval.IndexPath).Rebuild(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("indexed %d chunks into %s\n", n, cfg.Retrieval.IndexPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&loadPath, "load", "", "JSONL file of chunks to load before indexing")
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return cmd
}

// readChunks parses the JSONL chunk file, numbering chunks per source file
// in the order they appear.
func readChunks(path string) ([]store.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	perSource := make(map[string]int)
	var out []store.Chunk
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var cl chunkLine
		if err := json.Unmarshal(line, &cl); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, lineNo, err)
		}
		if cl.Text == "" {
			continue
		}
		out = append(out, store.Chunk{
			SourceFile: cl.SourceFile,
			ChunkIndex: perSource[cl.SourceFile],
			Content:    cl.Text,
		})
		perSource[cl.SourceFile]++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}
