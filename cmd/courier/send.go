package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/synqronlabs/courier"
)

type sendFlags struct {
	from     string
	to       []string
	cc       []string
	bcc      []string
	replyTo  []string
	subject  string
	text     string
	textFile string
	htmlFile string
	attach   []string
	headers  []string
	repeat   int
}

func newSendCommand(a *app) *cobra.Command {
	f := &sendFlags{}

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a message",
		Long: `Send a message over a single session. With --repeat the same message is
queued several times and the command waits for every delivery.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := f.messageOptions()
			if err != nil {
				return err
			}
			if f.repeat < 1 {
				return fmt.Errorf("--repeat must be at least 1")
			}

			cfg, stop, err := a.clientConfig(cmd.Context())
			if err != nil {
				return err
			}
			defer stop()

			session, err := courier.Connect(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer session.Close(nil)

			g, ctx := errgroup.WithContext(cmd.Context())
			for i := 0; i < f.repeat; i++ {
				msg, err := session.Send(opts)
				if err != nil {
					return err
				}
				g.Go(func() error {
					if err := msg.Wait(ctx); err != nil {
						return err
					}
					a.logger.Info("message accepted",
						slog.Int("n", i+1),
						slog.String("reply", msg.Reply().Message()),
					)
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "sent %d message(s) via %s\n", f.repeat, session.Host())
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.from, "from", "f", "", "Sender address")
	flags.StringArrayVarP(&f.to, "to", "t", nil, "Recipient address (repeatable)")
	flags.StringArrayVar(&f.cc, "cc", nil, "Cc address (repeatable)")
	flags.StringArrayVar(&f.bcc, "bcc", nil, "Bcc address (repeatable)")
	flags.StringArrayVar(&f.replyTo, "reply-to", nil, "Reply-To address (repeatable)")
	flags.StringVarP(&f.subject, "subject", "s", "", "Subject line")
	flags.StringVar(&f.text, "text", "", "Plain text body")
	flags.StringVar(&f.textFile, "text-file", "", "Read the plain text body from a file")
	flags.StringVar(&f.htmlFile, "html-file", "", "Read the HTML body from a file")
	flags.StringArrayVarP(&f.attach, "attach", "a", nil, "Attach a file (repeatable)")
	flags.StringArrayVar(&f.headers, "header", nil, `Custom header "Name: value" (repeatable)`)
	flags.IntVar(&f.repeat, "repeat", 1, "Send the message this many times over one session")

	return cmd
}

// messageOptions turns the flags into courier.MessageOptions.
func (f *sendFlags) messageOptions() (courier.MessageOptions, error) {
	var opts courier.MessageOptions
	var err error

	if f.from == "" {
		return opts, fmt.Errorf("--from is required")
	}
	if opts.From, err = courier.ParseAddress(f.from); err != nil {
		return opts, fmt.Errorf("--from: %w", err)
	}
	if opts.To, err = parseAddresses(f.to); err != nil {
		return opts, fmt.Errorf("--to: %w", err)
	}
	if opts.Cc, err = parseAddresses(f.cc); err != nil {
		return opts, fmt.Errorf("--cc: %w", err)
	}
	if opts.Bcc, err = parseAddresses(f.bcc); err != nil {
		return opts, fmt.Errorf("--bcc: %w", err)
	}
	if opts.ReplyTo, err = parseAddresses(f.replyTo); err != nil {
		return opts, fmt.Errorf("--reply-to: %w", err)
	}
	opts.Subject = f.subject

	opts.Text = f.text
	if f.textFile != "" {
		data, err := os.ReadFile(f.textFile)
		if err != nil {
			return opts, err
		}
		opts.Text = string(data)
	}
	if f.htmlFile != "" {
		data, err := os.ReadFile(f.htmlFile)
		if err != nil {
			return opts, err
		}
		opts.HTML = string(data)
	}

	for _, h := range f.headers {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return opts, fmt.Errorf("--header: expected \"Name: value\", got %q", h)
		}
		if opts.Headers == nil {
			opts.Headers = make(map[string]string)
		}
		opts.Headers[name] = strings.TrimSpace(value)
	}

	for _, path := range f.attach {
		data, err := os.ReadFile(path)
		if err != nil {
			return opts, err
		}
		opts.Attachments = append(opts.Attachments, courier.NewAttachment(filepath.Base(path), data))
	}

	// Surface validation errors before any connection is made.
	if _, err := courier.NewMessage(opts); err != nil {
		return opts, err
	}
	return opts, nil
}

func parseAddresses(values []string) ([]courier.Address, error) {
	var out []courier.Address
	for _, v := range values {
		list, err := courier.ParseAddressList(v)
		if err != nil {
			return nil, err
		}
		out = append(out, list...)
	}
	return out, nil
}
