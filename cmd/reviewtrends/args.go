package main

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/reviewtrends/internal/dates"
)

// Store ids: numeric App Store ids or reverse-DNS package names.
var appIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

func validAppID(_ *cobra.Command, args []string) error {
	// "." and ".." would escape the per-app output directories.
	if !appIDPattern.MatchString(args[0]) || strings.Trim(args[0], ".") == "" {
		return fmt.Errorf("invalid app id %q: use letters, digits, '.', '_' or '-'", args[0])
	}
	return nil
}

func validDate(s string) error {
	if _, err := dates.ParseDate(s); err != nil {
		return fmt.Errorf("invalid date %q: use YYYY-MM-DD", s)
	}
	return nil
}

func validAppAndDate(cmd *cobra.Command, args []string) error {
	if err := validAppID(cmd, args); err != nil {
		return err
	}
	return validDate(args[1])
}

func validDateRange(start, end string) error {
	if err := validDate(start); err != nil {
		return err
	}
	if err := validDate(end); err != nil {
		return err
	}
	if start > end {
		return fmt.Errorf("start %s is after end %s", start, end)
	}
	return nil
}
