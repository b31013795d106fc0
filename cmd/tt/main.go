package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tourtrust/internal/config"
	"tourtrust/internal/db"
	"tourtrust/internal/domain"
	"tourtrust/internal/engine"
	"tourtrust/internal/migrate"
	"tourtrust/internal/repo"
	"tourtrust/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "tt",
	Short: "TourTrust CLI",
	Long: `TourTrust keeps a local marketplace trust ledger for tourism providers:
- Verifications: providers submit for vetting; approval assigns a trust score
  backed by an attestation proof.
- Transactions: every value transfer moves pending -> confirmed -> completed
  (or fails with a reason).
- Contracts: escrow-backed milestone schedules that release funds as work is
  delivered and freeze on dispute.
- Bookings: one-shot checkout that prices a listing, gates on provider
  verification and cuts either a plain transaction or an escrow contract.
Every state change lands in an append-only event log ('tt log tail').`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TOURTRUST")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(verifyCmd())
	rootCmd.AddCommand(txCmd())
	rootCmd.AddCommand(contractCmd())
	rootCmd.AddCommand(bookCmd())
	rootCmd.AddCommand(reviewCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tokenCmd())
}

func verifyCmd() *cobra.Command {
	verify := &cobra.Command{
		Use:   "verify",
		Short: "Manage provider verifications",
		Long:  "Providers (guides, artisans, homestays, transport, equipment) submit for vetting. Approval draws a trust score and anchors an attestation proof; rejection and expiry zero the score.",
	}
	verify.AddCommand(verifySubmitCmd())
	verify.AddCommand(verifyDecideCmd("approve", "Approve a pending verification", true))
	verify.AddCommand(verifyDecideCmd("reject", "Reject a pending verification", false))
	verify.AddCommand(verifyExpireCmd())
	verify.AddCommand(verifyShowCmd())
	verify.AddCommand(verifyListCmd())
	verify.AddCommand(verifyScoreCmd())
	return verify
}

func verifySubmitCmd() *cobra.Command {
	var name, subjectType string
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a verification request",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.SubmitVerification(ctx, name, subjectType, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrPlain(v)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "subject name")
	cmd.Flags().StringVar(&subjectType, "type", "", "subject type (guide, artisan, homestay, transport, equipment)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func verifyDecideCmd(use, short string, approve bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.DecideVerification(ctx, args[0], approve, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrPlain(v)
			})
		},
	}
}

func verifyExpireCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expire <id>",
		Short: "Expire a verified record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.ExpireVerification(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrPlain(v)
			})
		},
	}
}

func verifyShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a verification record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.Repo.GetVerification(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrPlain(v)
			})
		},
	}
}

func verifyListCmd() *cobra.Command {
	var f repo.VerificationFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List verification records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListVerifications(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Type", "Status", "Score"})
				for _, v := range items {
					tw.AppendRow(table.Row{v.ID, v.SubjectName, v.SubjectType, v.Status, v.TrustScore})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.SubjectType, "type", "", "subject type filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max rows")
	return cmd
}

func verifyScoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "score <id>",
		Short: "Current trust score for a subject",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				score, err := e.ScoreOf(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"subject_id": args[0], "trust_score": score})
				}
				fmt.Println(score)
				return nil
			})
		},
	}
}

func txCmd() *cobra.Command {
	tx := &cobra.Command{
		Use:   "tx",
		Short: "Manage transactions",
		Long:  "Transactions record value transfers between marketplace parties. They flow pending -> confirmed -> completed; failing records a reason and is idempotent.",
	}
	tx.AddCommand(txRecordCmd())
	tx.AddCommand(txTransitionCmd("confirm", "Confirm a pending transaction", func(e engine.Engine, ctx context.Context, id, actor string) (domain.Transaction, error) {
		return e.ConfirmTransaction(ctx, id, actor)
	}))
	tx.AddCommand(txTransitionCmd("complete", "Complete a confirmed transaction", func(e engine.Engine, ctx context.Context, id, actor string) (domain.Transaction, error) {
		return e.CompleteTransaction(ctx, id, actor)
	}))
	tx.AddCommand(txFailCmd())
	tx.AddCommand(txShowCmd())
	tx.AddCommand(txListCmd())
	return tx
}

func txRecordCmd() *cobra.Command {
	var opts engine.RecordTransactionOptions
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.RecordTransaction(ctx, opts, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrPlain(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "kind (booking, payment, escrow, dispute)")
	cmd.Flags().Int64Var(&opts.Amount, "amount", 0, "amount in minor units")
	cmd.Flags().StringVar(&opts.From, "from", "", "paying party")
	cmd.Flags().StringVar(&opts.To, "to", "", "receiving party")
	cmd.Flags().StringVar(&opts.ContractID, "contract", "", "contract id (optional)")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func txTransitionCmd(use, short string, run func(engine.Engine, context.Context, string, string) (domain.Transaction, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := run(e, ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrPlain(t)
			})
		},
	}
}

func txFailCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "fail <id>",
		Short: "Fail a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.FailTransaction(ctx, args[0], reason, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrPlain(t)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "failure reason")
	return cmd
}

func txShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.Repo.GetTransaction(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrPlain(t)
			})
		},
	}
}

func txListCmd() *cobra.Command {
	var f repo.TransactionFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListTransactions(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Kind", "Amount", "Status", "From", "To"})
				for _, t := range items {
					tw.AppendRow(table.Row{t.ID, t.Kind, t.Amount, t.Status, t.FromParty, t.ToParty})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Kind, "kind", "", "kind filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.ContractID, "contract", "", "contract filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max rows")
	return cmd
}

func contractCmd() *cobra.Command {
	contract := &cobra.Command{
		Use:   "contract",
		Short: "Manage escrow contracts",
		Long:  "Contracts hold an escrow reserve against a milestone schedule. They flow draft -> active -> completed; disputes freeze the contract until an arbitration outcome releases or refunds the escrow.",
	}
	contract.AddCommand(contractCreateCmd())
	contract.AddCommand(contractActivateCmd())
	contract.AddCommand(contractCompleteMilestoneCmd())
	contract.AddCommand(contractDisputeCmd())
	contract.AddCommand(contractResolveCmd())
	contract.AddCommand(contractShowCmd())
	contract.AddCommand(contractListCmd())
	return contract
}

// parseMilestoneFlag parses "description:amount" or "description:amount:due".
func parseMilestoneFlag(raw string) (engine.MilestoneInput, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) < 2 {
		return engine.MilestoneInput{}, fmt.Errorf("milestone %q: want description:amount[:due]", raw)
	}
	amount, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return engine.MilestoneInput{}, fmt.Errorf("milestone %q: bad amount: %w", raw, err)
	}
	m := engine.MilestoneInput{Description: parts[0], Amount: amount}
	if len(parts) == 3 {
		m.DueDate = parts[2]
	}
	return m, nil
}

func contractCreateCmd() *cobra.Command {
	var opts engine.CreateContractOptions
	var milestones []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a draft contract",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, raw := range milestones {
				m, err := parseMilestoneFlag(raw)
				if err != nil {
					return err
				}
				opts.Milestones = append(opts.Milestones, m)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.CreateContract(ctx, opts, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrPlain(c)
			})
		},
	}
	cmd.Flags().StringVar(&opts.BookingID, "booking", "", "booking id (optional)")
	cmd.Flags().StringVar(&opts.Type, "type", "", "type (accommodation, guide, transport, full-package)")
	cmd.Flags().Int64Var(&opts.TotalAmount, "total", 0, "total amount in minor units")
	cmd.Flags().StringArrayVar(&opts.Parties, "party", []string{}, "party id, payer first (repeatable)")
	cmd.Flags().StringArrayVar(&milestones, "milestone", []string{}, "milestone as description:amount[:due] (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Terms, "term", []string{}, "contract term (repeatable)")
	cmd.Flags().StringVar(&opts.ExpiresAt, "expires", "", "expiry timestamp (RFC3339, optional)")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("total")
	return cmd
}

func contractActivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate <id>",
		Short: "Activate a funded draft contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.ActivateContract(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrPlain(c)
			})
		},
	}
}

func contractCompleteMilestoneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete-milestone <contract-id> <milestone-id>",
		Short: "Complete a milestone, releasing its payment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.CompleteMilestone(ctx, args[0], args[1], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrPlain(c)
			})
		},
	}
}

func contractDisputeCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "dispute <contract-id> <milestone-id>",
		Short: "Dispute a milestone, freezing the contract",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.DisputeMilestone(ctx, args[0], args[1], reason, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrPlain(c)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "dispute reason")
	return cmd
}

func contractResolveCmd() *cobra.Command {
	var outcome, note string
	cmd := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Resolve a disputed contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.ResolveDispute(ctx, args[0], outcome, note, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrPlain(c)
			})
		},
	}
	cmd.Flags().StringVar(&outcome, "outcome", "", "outcome (release or refund)")
	cmd.Flags().StringVar(&note, "note", "", "arbitration note")
	_ = cmd.MarkFlagRequired("outcome")
	return cmd
}

func contractShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a contract with milestones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.Repo.GetContract(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrPlain(c)
			})
		},
	}
}

func contractListCmd() *cobra.Command {
	var f repo.ContractFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List contracts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListContracts(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Status", "Total", "Escrow", "Milestones"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.ID, c.Type, c.Status, c.TotalAmount, c.EscrowAmount, len(c.Milestones)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.BookingID, "booking", "", "booking filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max rows")
	return cmd
}

func bookCmd() *cobra.Command {
	var opts engine.BookOptions
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Book a listing",
		Long:  "Prices the listing (per night for accommodation, per guest otherwise, plus the flat service fee), gates escrow coverage on provider verification, refuses overlapping stays, and cuts the transaction or escrow contract in one step.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.Book(ctx, opts, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrPlain(res)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Listing.ID, "listing", "", "listing id")
	cmd.Flags().StringVar(&opts.Listing.ProviderID, "provider", "", "provider verification id")
	cmd.Flags().StringVar(&opts.Listing.Kind, "kind", "", "listing kind (accommodation, guide, transport, activity, experience)")
	cmd.Flags().Int64Var(&opts.Listing.BasePrice, "price", 0, "base price in minor units")
	cmd.Flags().BoolVar(&opts.Listing.ContractCoverage, "coverage", false, "listing requires escrow contract coverage")
	cmd.Flags().IntVar(&opts.GuestCount, "guests", 1, "guest count")
	cmd.Flags().StringVar(&opts.StartDate, "start", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.EndDate, "end", "", "end date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.PaymentPreference, "prefer", "", "payment preference (direct or escrow)")
	_ = cmd.MarkFlagRequired("listing")
	_ = cmd.MarkFlagRequired("provider")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func reviewCmd() *cobra.Command {
	review := &cobra.Command{Use: "review", Short: "Manage reviews"}
	review.AddCommand(reviewAddCmd())
	review.AddCommand(reviewListCmd())
	return review
}

func reviewAddCmd() *cobra.Command {
	var opts engine.AddReviewOptions
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a review for a verified subject",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rv, err := e.AddReview(ctx, opts, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrPlain(rv)
			})
		},
	}
	cmd.Flags().StringVar(&opts.SubjectID, "subject", "", "verification id of the reviewed subject")
	cmd.Flags().IntVar(&opts.Rating, "rating", 0, "rating 1-5")
	cmd.Flags().StringVar(&opts.Comment, "comment", "", "review text")
	cmd.Flags().StringVar(&opts.Proof, "proof", "", "attestation proof; marks the review verified when it matches")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("rating")
	return cmd
}

func reviewListCmd() *cobra.Command {
	var subjectID string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reviews for a subject",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ReviewsFor(ctx, subjectID, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Rating", "Verified", "Reviewer", "Comment"})
				for _, rv := range items {
					tw.AppendRow(table.Row{rv.ID, rv.Rating, rv.Verified, rv.ReviewerID, rv.Comment})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&subjectID, "subject", "", "verification id")
	cmd.Flags().IntVar(&limit, "limit", 0, "max rows")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Verification counts and average trust score",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				stats, err := e.Repo.VerificationStats(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(stats)
				}
				fmt.Printf("Total: %d (pending %d, verified %d, rejected %d, expired %d)\n",
					stats.Total, stats.Pending, stats.Verified, stats.Rejected, stats.Expired)
				fmt.Printf("Average trust score: %.1f\n", stats.AverageTrustScore)
				return nil
			})
		},
	}
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, entityKind, entityID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Type", "Entity", "ID", "Status", "Actor"})
				for _, ev := range events {
					tw.AppendRow(table.Row{ev.TS, ev.Type, ev.EntityKind, ev.EntityID, ev.NewStatus, ev.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind filter")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id filter")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage ledger policies"}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configImportCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active policy config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrPlain(e.Config)
			})
		},
	}
}

func configInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the default tourtrust.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
}

func configImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import policy config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFile(filePath)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.Repo.UpsertLedgerConfig(ctx, cfg); err != nil {
					return err
				}
				return printJSONOrPlain(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := resolveConfig(cmd.Context(), workspace, repo.Repo{DB: conn})
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("TOURTRUST_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				fmt.Println("WARNING: TOURTRUST_JWT_SECRET not set; serving in open mode, X-Actor-Id header trusted")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving TourTrust API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func tokenCmd() *cobra.Command {
	var subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("TOURTRUST_JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("TOURTRUST_JWT_SECRET is not set")
			}
			now := time.Now()
			token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
				Subject:   subject,
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			}).SignedString([]byte(secret))
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "admin", "token subject (actor id)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

// --- helpers ---

// resolveConfig prefers the config imported into the DB, then tourtrust.yml
// in the workspace, then the built-in defaults.
func resolveConfig(ctx context.Context, workspace string, r repo.Repo) (*config.Config, error) {
	cfg, err := r.GetLedgerConfig(ctx)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	cfg, err = config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		return cfg, nil
	}
	return config.Default(), nil
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := resolveConfig(ctx, workspace, repo.Repo{DB: conn})
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func printJSONOrPlain(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
