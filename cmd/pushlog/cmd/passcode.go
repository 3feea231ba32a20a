package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmcleod/pushlog/internal/util"
)

var (
	argonTime        uint32
	argonMemoryKiB   uint32
	argonParallelism uint8
)

var passcodeCmd = &cobra.Command{
	Use:   "passcode",
	Short: "Passcode helpers",
}

var passcodeHashCmd = &cobra.Command{
	Use:   "hash",
	Short: "Hash a passcode for PUSHUP_PASSCODE_HASH",
	Long: `Reads the passcode from the first line of standard input and prints its
argon2id encoding. Configure the result as PUSHUP_PASSCODE_HASH instead of
keeping the plain passcode in PUSHUP_PASSCODE.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		passcode, err := readPasscode(cmd.InOrStdin())
		if err != nil {
			return err
		}
		params := util.DefaultArgon2idParams()
		params.Time = argonTime
		params.MemoryKiB = argonMemoryKiB
		params.Parallelism = argonParallelism

		encoded, err := util.EncodeArgon2idHash(passcode, params)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), encoded)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(passcodeCmd)
	passcodeCmd.AddCommand(passcodeHashCmd)

	defaults := util.DefaultArgon2idParams()
	passcodeHashCmd.Flags().Uint32Var(&argonTime, "time", defaults.Time, "argon2id iterations")
	passcodeHashCmd.Flags().Uint32Var(&argonMemoryKiB, "memory", defaults.MemoryKiB, "argon2id memory in KiB")
	passcodeHashCmd.Flags().Uint8Var(&argonParallelism, "parallelism", defaults.Parallelism, "argon2id parallelism")
}

// readPasscode returns the first line of r without its line ending.
func readPasscode(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading passcode: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty passcode on standard input")
	}
	return line, nil
}
