package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newAskCmd(open opener) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, closeFn, err := open(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = closeFn(ctx) }()

			answer, err := svc.Answer(ctx, strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("ask failed: %w", err)
			}

			if asJSON {
				data, err := json.MarshalIndent(answer, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal answer: %w", err)
				}
				cmd.Println(string(data))
				return nil
			}

			cmd.Println(answer.Answer)
			if len(answer.Sources) > 0 {
				cmd.Println()
				cmd.Println("Sources:")
				for _, title := range answer.Sources {
					cmd.Printf("  - %s\n", title)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the answer as JSON")
	return cmd
}
