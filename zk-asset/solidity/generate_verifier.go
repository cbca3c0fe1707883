package main

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/consensys/gnark/backend/plonk"
	"github.com/kysee/zkledger/zk-asset/verifier"
	"github.com/rs/zerolog"
)

// Compiles the spend and output circuits and writes a Solidity verifier
// and the serialized verifying key of each into the directory given as
// the first argument, or ./contracts.
func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	dir := "contracts"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Fatal().Err(err).Str("dir", dir).Msg("create output directory")
	}

	keys, err := verifier.Setup()
	if err != nil {
		logger.Fatal().Err(err).Msg("circuit setup")
	}

	for name, vk := range map[string]plonk.VerifyingKey{
		"Spend":  keys.SpendVK,
		"Output": keys.OutputVK,
	} {
		if err := export(dir, name, vk); err != nil {
			logger.Fatal().Err(err).Str("circuit", name).Msg("export verifier")
		}
		logger.Info().Str("circuit", name).Str("dir", dir).Msg("verifier generated")
	}
}

func export(dir, name string, vk plonk.VerifyingKey) error {
	var buf bytes.Buffer
	if err := vk.ExportSolidity(&buf); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, name+"Verifier.sol"), buf.Bytes(), 0644); err != nil {
		return err
	}

	buf.Reset()
	if _, err := vk.WriteTo(&buf); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name+".vk"), buf.Bytes(), 0644)
}
