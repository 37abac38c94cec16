package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/scoreboard/internal/adapters/auth"
	"github.com/okian/scoreboard/internal/adapters/repository"
	service "github.com/okian/scoreboard/internal/app"
	"github.com/okian/scoreboard/internal/config"
	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/pkg/logger"
)

// ProvisionOptions holds flags for the provision command.
type ProvisionOptions struct {
	*RootOptions

	ID       string
	Name     string
	Count    int
	TokenTTL time.Duration
}

// NewProvisionCommand creates the provision command.
func NewProvisionCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProvisionOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create users with a zero score",
		Long: `Create users in the configured store with score 0.

Either a single user (--id, --name) or --count users with random ids.
Needs a persistent store (sqlite or redis); a memory-backed server is
seeded with serve --seed instead.
With --token-ttl each line also carries a signed bearer token for the user.`,
		Example: `  scoreboard provision --id alice --name Alice
  scoreboard provision --count 500 --token-ttl 1h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProvision(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.ID, "id", "", "user id to create")
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name (defaults to the id)")
	cmd.Flags().IntVarP(&opts.Count, "count", "n", 0, "number of users with random ids to create")
	cmd.Flags().DurationVar(&opts.TokenTTL, "token-ttl", 0, "print a bearer token valid for this long")
	cmd.MarkFlagsMutuallyExclusive("id", "count")
	return cmd
}

func runProvision(ctx context.Context, opts *ProvisionOptions, out io.Writer) error {
	if !service.Persistent(opts.Config.StoreDriver) {
		return fmt.Errorf("%w: provision needs store_driver sqlite or redis; "+
			"the %s store lives only inside serve, use serve --seed instead",
			config.ErrInvalidConfig, opts.Config.StoreDriver)
	}
	if opts.ID == "" && opts.Count <= 0 {
		return errors.New("either --id or a positive --count is required")
	}

	store, err := service.OpenStore(ctx, opts.Config, opts.Log.Named("store"))
	if err != nil {
		return fmt.Errorf("open %s store: %w", opts.Config.StoreDriver, err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			opts.Log.Error(ctx, "close store", logger.Error(cerr))
		}
	}()

	// Rows created before a failure are still printed.
	users, createErr := opts.create(ctx, store)
	for _, u := range users {
		line := u.UserID + "\t" + u.DisplayName
		if opts.TokenTTL > 0 {
			tok, err := auth.Sign(opts.Config.JWTSecret, auth.Identity{UserID: u.UserID, Role: auth.RoleUser}, opts.TokenTTL)
			if err != nil {
				return err
			}
			line += "\t" + tok
		}
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}

	opts.Log.Info(ctx, "provisioned users",
		logger.Int("count", len(users)),
		logger.String("store", opts.Config.StoreDriver))
	return createErr
}

// create adds the single named user or Count random ones.
func (o *ProvisionOptions) create(ctx context.Context, store repository.Store) ([]model.UserScore, error) {
	if o.ID == "" {
		return service.SeedUsers(ctx, store, o.Count)
	}
	name := o.Name
	if name == "" {
		name = o.ID
	}
	u, err := store.Create(ctx, o.ID, name)
	if err != nil {
		return nil, fmt.Errorf("create %q: %w", o.ID, err)
	}
	return []model.UserScore{u}, nil
}
