/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jobboard/apiserver/internal/auth"
	"github.com/jobboard/apiserver/internal/listing"
	"github.com/jobboard/apiserver/internal/services"
	"github.com/jobboard/apiserver/internal/store"
	"github.com/jobboard/apiserver/types"
)

var jobsFlags struct {
	location string
	watch    bool
}

var jobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "Browse active job postings",
	Long: `List active job postings, show one posting, or filter live by location.

	jobboard jobs --location berlin
	jobboard jobs 1790412345678901248
	jobboard jobs --watch
`,
	Args: cobra.MaximumNArgs(1),
	RunE: withClient(func(cmd *cobra.Command, env *clientEnv, args []string) error {
		client := env.accessor.Client(cmd.Context())
		if client == nil {
			return reportError(cmd, auth.ErrConfigurationMissing)
		}
		svc := services.NewJobService(store.NewJobRepository(client.DB), store.NewUserRepository(client.DB), client.Events)
		out := cmd.OutOrStdout()

		if len(args) == 1 {
			job, err := svc.Get(cmd.Context(), args[0])
			if errors.Is(err, store.ErrNotFound) {
				fmt.Fprintf(cmd.ErrOrStderr(), "Job with ID %s not found.\n", args[0])
				return err
			}
			if err != nil {
				return err
			}
			printJobDetail(out, job)
			return nil
		}

		jobs, err := svc.List(cmd.Context(), "")
		if err != nil {
			return err
		}
		if !jobsFlags.watch {
			printJobs(out, jobsFlags.location, listing.FilterByLocation(jobs, jobsFlags.location))
			return nil
		}
		return watchJobs(cmd, jobs)
	}),
}

func printJobs(w io.Writer, query string, jobs []types.JobPosting) {
	if len(jobs) == 0 {
		if query != "" {
			fmt.Fprintf(w, "No jobs found in %q.\n", query)
		} else {
			fmt.Fprintln(w, "No jobs posted yet.")
		}
		return
	}
	for _, j := range jobs {
		fmt.Fprintf(w, "%-20s %-40s %-20s %s\n", j.ID, j.Title, j.CompanyName, j.Location)
	}
}

func printJobDetail(w io.Writer, job types.JobPostingDetail) {
	fmt.Fprintf(w, "%s\n%s - %s\n%s, %s\n\n%s\n\nHow to apply: %s\n",
		job.Title, job.EmployerName, job.Location, job.EmploymentType, job.ExperienceLevel,
		job.Description, job.ApplicationInstructions)
	if job.SalaryMin != nil || job.SalaryMax != nil {
		fmt.Fprintf(w, "Salary: %s %s - %s\n", job.SalaryCurrency, formatSalary(job.SalaryMin), formatSalary(job.SalaryMax))
	}
}

func formatSalary(v *float64) string {
	if v == nil {
		return "?"
	}
	return fmt.Sprintf("%.0f", *v)
}

// watchJobs re-filters the postings by location while the user types. On a
// terminal every keystroke updates the query; otherwise every input line does.
func watchJobs(cmd *cobra.Command, jobs []types.JobPosting) error {
	var mu sync.Mutex
	out := cmd.OutOrStdout()
	fd := int(os.Stdin.Fd())
	raw := cmd.InOrStdin() == os.Stdin && term.IsTerminal(fd)

	render := func(query string, matched []types.JobPosting) {
		mu.Lock()
		defer mu.Unlock()
		var b strings.Builder
		printJobs(&b, query, matched)
		text := b.String()
		if raw {
			text = "\x1b[2J\x1b[H" + strings.ReplaceAll(text, "\n", "\r\n") + "\r\nLocation: " + query
		}
		fmt.Fprint(out, text)
	}

	filter := listing.NewLiveFilter(jobs, listing.DefaultDelay, render)
	defer filter.Stop()
	render("", jobs)

	if !raw {
		for {
			line, err := readLine(cmd)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			filter.SetQuery(line)
		}
	}

	state, err := term.MakeRaw(fd)
	if err != nil {
		return err
	}
	defer func() {
		_ = term.Restore(fd, state)
		fmt.Fprintln(out)
	}()

	var query, pending []byte
	buf := make([]byte, 64)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return nil
		}
		next, rest, done := applyKeys(query, append(pending, buf[:n]...))
		if done {
			return nil
		}
		pending = rest
		if string(next) != string(query) {
			query = next
			filter.SetQuery(string(query))
		}
	}
}

// applyKeys edits query with the keystrokes in input. Only printable runes
// are added; backspace removes the last rune and Ctrl-C, Ctrl-D, Enter or a
// lone Escape end the session. An incomplete trailing rune is returned as
// rest for the next read. Escape sequences are ignored.
func applyKeys(query, input []byte) (next, rest []byte, done bool) {
	next = append([]byte(nil), query...)
	if len(input) > 0 && input[0] == 27 {
		return next, nil, len(input) == 1
	}
	for len(input) > 0 {
		if !utf8.FullRune(input) {
			return next, input, false
		}
		r, size := utf8.DecodeRune(input)
		input = input[size:]
		switch {
		case r == 3 || r == 4 || r == '\r':
			return next, nil, true
		case r == 127 || r == 8:
			if len(next) > 0 {
				_, n := utf8.DecodeLastRune(next)
				next = next[:len(next)-n]
			}
		case r != utf8.RuneError && unicode.IsPrint(r):
			next = utf8.AppendRune(next, r)
		}
	}
	return next, nil, false
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.Flags().StringVarP(&jobsFlags.location, "location", "l", "", "only postings whose location contains this text")
	jobsCmd.Flags().BoolVarP(&jobsFlags.watch, "watch", "w", false, "filter interactively as you type")
}
