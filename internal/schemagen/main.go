package main

import (
	"flag"
	"log"
	"os"

	"github.com/macropower/prodmatch/api/v1beta1/configs"
	"github.com/macropower/prodmatch/pkg/yaml"
)

var outFile = flag.String("o", "schema.json", "Output file for the generated schema")

func main() {
	flag.Parse()

	gen := yaml.NewSchemaGenerator(configs.New(),
		"github.com/macropower/prodmatch/api/v1beta1",
		"github.com/macropower/prodmatch/api/v1beta1/configs",
		"github.com/macropower/prodmatch/pkg/classify",
		"github.com/macropower/prodmatch/pkg/dataset",
		"github.com/macropower/prodmatch/pkg/execs",
		"github.com/macropower/prodmatch/pkg/match",
		"github.com/macropower/prodmatch/pkg/mcp",
		"github.com/macropower/prodmatch/pkg/notify",
		"github.com/macropower/prodmatch/pkg/oracle",
		"github.com/macropower/prodmatch/pkg/pipeline",
		"github.com/macropower/prodmatch/pkg/result",
	)
	jsData, err := gen.Generate()
	if err != nil {
		log.Fatalf("generate JSON schema: %v", err)
	}

	// Write schema.json file.
	err = os.WriteFile(*outFile, jsData, 0o600)
	if err != nil {
		log.Fatalf("write schema file: %v", err)
	}
}
