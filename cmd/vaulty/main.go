// Command vaulty backs up buckets and video catalogs into archive vaults
// and manages the archives stored there.
package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/maruel/subcommands"
)

func application() *subcommands.DefaultApplication {
	return &subcommands.DefaultApplication{
		Name:  "vaulty",
		Title: "Archive vault backup tool",
		Commands: []*subcommands.Command{
			subcommands.CmdHelp,

			cmdBackupBucket(),
			cmdUploadVideos(),
			cmdDeleteArchives(),
			cmdInventory(),

			cmdListVaults(),
			cmdListJobs(),
			cmdJobOutput(),
		},
		EnvVars: map[string]subcommands.EnvVarDefinition{
			"VAULTY_CONFIG_PATH": {
				ShortDesc: "Default for -config.",
			},
		},
	}
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	os.Exit(subcommands.Run(application(), os.Args[1:]))
}
