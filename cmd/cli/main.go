package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"pricewatch/internal/catalog"
	"pricewatch/internal/checkpoint"
	"pricewatch/pkg/config"
	"pricewatch/pkg/database"
)

func main() {
	app := &cli.App{
		Name:  "pricewatch",
		Usage: "inspect the catalog database and manage crawl checkpoints",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "config file (default config.yaml, or PRICEWATCH_CONFIG)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "stats",
				Usage: "per-source entity counts",
				Action: func(c *cli.Context) error {
					db, err := database.Open(database.DefaultConfig())
					if err != nil {
						return err
					}
					defer db.Close()

					stats, err := catalog.NewRepo(db).Stats(c.Context)
					if err != nil {
						return err
					}

					w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
					fmt.Fprintln(w, "SOURCE\tPRODUCTS\tCATEGORIES\tMANUFACTURERS\tPRICE POINTS")
					for _, s := range stats {
						fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n",
							s.Source.Name, s.Products, s.Categories, s.Manufacturers, s.PricePoints)
					}
					return w.Flush()
				},
			},
			{
				Name:  "sources",
				Usage: "list known sources",
				Action: func(c *cli.Context) error {
					db, err := database.Open(database.DefaultConfig())
					if err != nil {
						return err
					}
					defer db.Close()

					srcs, err := catalog.NewRepo(db).ListSources(c.Context)
					if err != nil {
						return err
					}
					for _, s := range srcs {
						fmt.Printf("%d\t%s\n", s.ID, s.Name)
					}
					return nil
				},
			},
			{
				Name:  "checkpoint",
				Usage: "inspect and reset crawl resume points",
				Subcommands: []*cli.Command{
					{
						Name:  "show",
						Usage: "print saved checkpoints",
						Action: func(c *cli.Context) error {
							cfg, err := config.Load(c.String("config"))
							if err != nil {
								return err
							}
							return showCheckpoints(cfg.StateDir)
						},
					},
					{
						Name:      "reset",
						Usage:     "discard a source's checkpoint so the next run starts fresh",
						ArgsUsage: "<source>",
						Action: func(c *cli.Context) error {
							source := c.Args().First()
							if source == "" {
								return fmt.Errorf("source name required")
							}
							cfg, err := config.Load(c.String("config"))
							if err != nil {
								return err
							}
							if err := checkpoint.Reset(cfg.StateDir, source); err != nil {
								return err
							}
							fmt.Printf("checkpoint for %s reset\n", source)
							return nil
						},
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func showCheckpoints(stateDir string) error {
	entries, err := os.ReadDir(stateDir)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("no checkpoints")
			return nil
		}
		return err
	}

	found := false
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".checkpoint.json") {
			continue
		}
		found = true

		b, err := os.ReadFile(filepath.Join(stateDir, name))
		if err != nil {
			return err
		}
		var saved struct {
			Version int   `json:"version"`
			Cursor  []int `json:"cursor"`
		}
		if err := json.Unmarshal(b, &saved); err != nil {
			fmt.Printf("%s\tunreadable: %v\n", name, err)
			continue
		}
		source := strings.TrimSuffix(name, ".checkpoint.json")
		fmt.Printf("%s\tnext unit %v\n", source, saved.Cursor)
	}
	if !found {
		fmt.Println("no checkpoints")
	}
	return nil
}
