package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aiuser8/thallos-llm-service/internal/app"
	"github.com/Aiuser8/thallos-llm-service/internal/config"
	"github.com/Aiuser8/thallos-llm-service/internal/logging"
)

var askShowSQL bool

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a single natural language question and exit",
	Long: `Ask runs the same pipeline as POST /query — schema-grounded planning,
rewriting, guarding, execution, and summarization — against a single question
given on the command line, without starting the HTTP server.

Examples:
  nlsql-gateway ask "what is the average utilization for aave usdc over the last day"
  nlsql-gateway ask --sql "top 5 symbols by borrow apy"`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askShowSQL, "sql", false, "print the guarded SQL alongside the answer")
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.TrimSpace(args[0])
	if question == "" {
		return fmt.Errorf("question must not be empty")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	cfg.ExpandAllPaths()

	if err := logging.InitializeLogger(cfg.Logging); err != nil {
		logging.SetupFallbackLogger()
	}

	ctx := cmd.Context()

	gw, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer gw.Close()

	resp, err := gw.Coordinator.Handle(ctx, question)
	if err != nil {
		return err
	}

	fmt.Println(resp.Answer)

	if askShowSQL {
		fmt.Println("\nSQL:")
		fmt.Println(resp.SQL)
	}

	return nil
}
