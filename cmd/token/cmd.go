package token

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/omero-biomero/tusgate/internal/auth"
	"github.com/omero-biomero/tusgate/internal/config"
	"github.com/omero-biomero/tusgate/internal/model"
)

var (
	userID string
	name   string
	admin  bool
	groups []string
	ttl    time.Duration
	secret string
)

// Cmd issues a bearer token for auth_mode jwt
var Cmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a jwt for a user",
	Long:  `Issue a jwt for a user, the secret is read from --secret or TUSGATE_JWT_SECRET`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if userID == "" {
			return errors.New("--user is required")
		}
		if secret == "" {
			secret = os.Getenv(config.EnvJwtSecret)
		}
		if secret == "" {
			return errors.New("no secret, pass --secret or set " + config.EnvJwtSecret)
		}
		token, err := auth.GenerateToken(model.Principal{ID: userID, Name: name, Admin: admin, Groups: groups}, []byte(secret), ttl)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	Cmd.Flags().StringVar(&userID, "user", "", "OMERO user id")
	Cmd.Flags().StringVar(&name, "name", "", "OMERO user name")
	Cmd.Flags().BoolVar(&admin, "admin", false, "grant admin rights")
	Cmd.Flags().StringSliceVar(&groups, "groups", nil, "OMERO groups, comma separated")
	Cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	Cmd.Flags().StringVar(&secret, "secret", "", "HS256 secret")
}
