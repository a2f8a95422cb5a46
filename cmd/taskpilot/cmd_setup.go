package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/user/taskpilot/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("Taskpilot Setup Wizard")
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println()

		fmt.Println("Loop agent")
		cfg.LLM.Provider = prompt(scanner, "LLM provider (openai|anthropic|ollama)", cfg.LLM.Provider)
		cfg.LLM.BaseURL = prompt(scanner, "LLM base URL (empty for provider default)", cfg.LLM.BaseURL)
		if cfg.LLM.Provider != "ollama" {
			cfg.LLM.APIKey = prompt(scanner, "LLM API key", cfg.LLM.APIKey)
		}
		cfg.LLM.Model = prompt(scanner, "LLM model name", cfg.LLM.Model)
		maxTokensStr := prompt(scanner, "Max output tokens", strconv.Itoa(cfg.LLM.MaxTokens))
		if n, err := strconv.Atoi(maxTokensStr); err == nil {
			cfg.LLM.MaxTokens = n
		}

		fmt.Println()
		fmt.Println("Hosted agent (optional)")
		cfg.Hosted.APIKey = prompt(scanner, "OpenAI API key", cfg.Hosted.APIKey)
		cfg.Hosted.AssistantID = prompt(scanner, "Assistant ID", cfg.Hosted.AssistantID)

		fmt.Println()
		cfg.HTTP.Listen = prompt(scanner, "HTTP listen address", cfg.HTTP.Listen)
		cfg.Telegram.Token = prompt(scanner, "Telegram bot token (optional)", cfg.Telegram.Token)

		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		return nil
	},
}

// prompt displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, the default is returned.
func prompt(scanner *bufio.Scanner, label, defaultVal string) string {
	if defaultVal != "" {
		shown := defaultVal
		if strings.Contains(strings.ToLower(label), "key") || strings.Contains(strings.ToLower(label), "token") {
			shown = config.Mask(defaultVal)
		}
		fmt.Printf("%s [%s]: ", label, shown)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input != "" {
			return input
		}
	}
	return defaultVal
}
