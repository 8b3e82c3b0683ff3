package upload

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/omero-biomero/tusgate/internal/auth"
	"github.com/omero-biomero/tusgate/internal/client"
	"github.com/omero-biomero/tusgate/pkg"
)

var (
	url      string
	dir      string
	worker   int
	user     string
	token    string
	chunk    int64
	resumeDB string
)

// Cmd uploads a directory through the tus endpoint
var Cmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload every file of a directory",
	Long:  `Upload every file of a directory through the tus endpoint, interrupted runs resume with --resume-db`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !pkg.DirExists(dir) {
			return fmt.Errorf("%s is not a directory", dir)
		}
		header := http.Header{}
		if user != "" {
			header.Set(auth.HeaderUserID, user)
		}
		if token != "" {
			header.Set("Authorization", "Bearer "+token)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st := time.Now()
		results, err := client.UploadDir(ctx, client.Options{
			URL:       url,
			Dir:       dir,
			Workers:   worker,
			Header:    header,
			ChunkSize: chunk,
			ResumeDB:  resumeDB,
		})
		if err != nil {
			return err
		}
		for _, r := range results {
			if r.Err != nil {
				fmt.Println("FAIL", r.Path, r.Err)
				continue
			}
			fmt.Println(r.URL, r.Path)
		}
		fmt.Println(time.Since(st))
		if n := client.Failed(results); n > 0 {
			return fmt.Errorf("%w: %d of %d", client.ErrSomeFailed, n, len(results))
		}
		return nil
	},
}

func init() {
	Cmd.Flags().StringVar(&url, "url", "http://127.0.0.1:8080/upload/", "tus creation url")
	Cmd.Flags().StringVar(&dir, "dir", "./", "dir to upload")
	Cmd.Flags().IntVar(&worker, "worker", 4, "num of worker")
	Cmd.Flags().StringVar(&user, "user", "", "OMERO user id for auth_mode header")
	Cmd.Flags().StringVar(&token, "token", "", "bearer token for auth_mode jwt")
	Cmd.Flags().Int64Var(&chunk, "chunk-size", 2*1024*1024, "bytes per PATCH")
	Cmd.Flags().StringVar(&resumeDB, "resume-db", "", "leveldb file remembering unfinished uploads")
}
