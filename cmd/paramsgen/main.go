package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/provideplatform/fold/accumulator"
	"github.com/provideplatform/fold/artifact"
	"github.com/provideplatform/fold/common"
	"github.com/provideplatform/fold/params"
	"github.com/provideplatform/fold/witness"
	"github.com/provideplatform/fold/zkp/providers"
	"github.com/spf13/cobra"
)

var (
	chunks   int
	depth    int
	keysFile string
	index    int
)

var paramsgenCmd = &cobra.Command{
	Use:   "paramsgen",
	Short: "Generate and chunk the public params and compression keys of the folded membership circuit",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.HelpFunc()(cmd, args)
	},
}

var paramsCmd = &cobra.Command{
	Use:   "params <circuit> <output>",
	Short: "Generate public params and derive the compression keys",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := manager(args[1])
		if err != nil {
			return err
		}

		p, err := generateParams(cmd.Context(), m, args[0])
		if err != nil {
			return err
		}

		_, _, err = m.DeriveKeys(cmd.Context(), p)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "saved params %s and compression keys to %s\n", p.Key, m.Dir())
		return nil
	},
}

var chunkedParamsCmd = &cobra.Command{
	Use:   "chunked-params <circuit> <output>",
	Short: "Generate public params; the full file and its chunks are saved",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := manager(args[1])
		if err != nil {
			return err
		}

		p, err := generateParams(cmd.Context(), m, args[0])
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "saved params %s to %s\n", p.Key, m.ParamsPath())
		return nil
	},
}

var chunkedKeysCmd = &cobra.Command{
	Use:   "chunked-keys <path>",
	Short: "Derive chunked compression keys from the public params saved under path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := manager(args[0])
		if err != nil {
			return err
		}

		p, err := m.LoadParams(cmd.Context(), m.ParamsPath())
		if err != nil {
			return err
		}

		_, _, err = m.DeriveKeys(cmd.Context(), p)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "saved %d-chunk compression keys to %s\n", chunks, m.Dir())
		return nil
	},
}

var circuitCmd = &cobra.Command{
	Use:   "circuit <output>",
	Short: "Write the folded membership circuit descriptor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := json.MarshalIndent(providers.MembershipCircuit(depth), "", "  ")
		if err != nil {
			return err
		}

		err = artifact.WriteFile(args[0], raw)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "saved depth %d circuit to %s\n", depth, args[0])
		return nil
	},
}

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Compute the accumulator root of a public key set and, optionally, one member's path",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(keysFile)
		if err != nil {
			return common.Wrap(common.ErrIO, err, "failed to read public keys %s", keysFile)
		}

		return printTree(cmd.OutOrStdout(), raw)
	},
}

func init() {
	paramsgenCmd.PersistentFlags().IntVar(&chunks, "chunks", common.ArtifactChunks, "The number of chunks params and keys are split into.")

	circuitCmd.Flags().IntVar(&depth, "depth", common.TreeDepth, "The depth of the membership accumulator.")

	treeCmd.Flags().IntVar(&depth, "depth", common.TreeDepth, "The depth of the membership accumulator.")
	treeCmd.Flags().StringVar(&keysFile, "keys", "", "A JSON file holding the [x, y] coordinates of each public key.")
	treeCmd.Flags().IntVar(&index, "index", -1, "The member whose path is printed.")
	treeCmd.MarkFlagRequired("keys")

	paramsgenCmd.AddCommand(paramsCmd)
	paramsgenCmd.AddCommand(chunkedParamsCmd)
	paramsgenCmd.AddCommand(chunkedKeysCmd)
	paramsgenCmd.AddCommand(circuitCmd)
	paramsgenCmd.AddCommand(treeCmd)
}

func manager(dir string) (*params.Manager, error) {
	engine, err := providers.EngineFactory(common.EngineProvider)
	if err != nil {
		return nil, err
	}
	return params.NewManager(engine, filepath.Clean(dir), chunks, common.Log), nil
}

func generateParams(ctx context.Context, m *params.Manager, circuitLocation string) (*providers.PublicParams, error) {
	engine, err := providers.EngineFactory(common.EngineProvider)
	if err != nil {
		return nil, err
	}

	circuit, err := engine.LoadCircuit(ctx, circuitLocation)
	if err != nil {
		return nil, err
	}

	return m.GenerateParams(ctx, circuit)
}

type treeOutput struct {
	Root        string           `json:"root"`
	Depth       int              `json:"depth"`
	Length      int              `json:"length"`
	Index       *int             `json:"index,omitempty"`
	PathIndices witness.PathBits `json:"pathIndices,omitempty"`
	Siblings    []string         `json:"siblings,omitempty"`
}

func printTree(w io.Writer, raw []byte) error {
	var keys [][2]string
	err := json.Unmarshal(raw, &keys)
	if err != nil {
		return common.Wrap(common.ErrMalformedInput, err, "public keys must be a list of [x, y] pairs")
	}

	tree, err := accumulator.NewTree(depth)
	if err != nil {
		return err
	}

	for _, key := range keys {
		_, err := tree.InsertPublicKey(key[0], key[1])
		if err != nil {
			return err
		}
	}

	out := &treeOutput{
		Root:   tree.RootString(),
		Depth:  tree.Depth(),
		Length: tree.Length(),
	}

	if index >= 0 {
		pathIndices, siblings, err := tree.Proof(index)
		if err != nil {
			return err
		}
		i := index
		out.Index = &i
		out.PathIndices = pathIndices
		out.Siblings = siblings
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func main() {
	if err := paramsgenCmd.Execute(); err != nil {
		fmt.Println(err.Error())
		os.Exit(1)
	}
}
