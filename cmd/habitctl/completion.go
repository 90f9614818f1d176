package main

import (
	"github.com/spf13/cobra"
)

func completionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate completion script for your shell",
		Long: `To load completions:

Bash:
  $ source <(habitctl completion bash)

  # To load for each session (Linux):
  $ habitctl completion bash > ~/.local/share/bash-completion/completions/habitctl

Zsh:
  $ habitctl completion zsh > ~/.zsh/completions/_habitctl
  # (add ~/.zsh/completions to fpath in .zshrc)

Fish:
  $ habitctl completion fish > ~/.config/fish/completions/habitctl.fish

PowerShell:
  PS> habitctl completion powershell >> $PROFILE

Habit names are not completed: that would need the vault password.
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
}
