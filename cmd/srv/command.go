package main

import "github.com/urfave/cli/v2"

func (s *srv) loadApp() {
	configFlag := &cli.StringFlag{
		Name:    "config",
		Usage:   "Path of the TOML config file",
		EnvVars: []string{"DROP_CONFIG"},
	}

	periodFlag := &cli.StringFlag{
		Name:  "period",
		Usage: "Period key (YYYY-MM-DD), default is the last ended period",
	}

	s.app = cli.NewApp()
	s.app.Action = cli.ShowAppHelp
	s.app.Name = "sevendrop"
	s.app.Usage = "Seven O'Clock Drop backend"
	s.app.Flags = []cli.Flag{configFlag}
	s.app.Commands = []*cli.Command{
		{
			Action:      s.startApi,
			Name:        "api",
			Usage:       "Start service api",
			Category:    "Service",
			Description: `Serves the public entry api, the operator api and the metrics endpoint.`,
		},
		{
			Action:      s.startCron,
			Name:        "cron",
			Usage:       "Start the drop scheduler",
			Category:    "Service",
			Description: `Runs the nightly draw and reset, and retries pending payouts.`,
		},
		{
			Action:   s.runDraw,
			Name:     "draw",
			Usage:    "Draw the winner of a period and pay out",
			Category: "Operator",
			Flags:    []cli.Flag{periodFlag},
		},
		{
			Action:   s.resetPeriod,
			Name:     "reset",
			Usage:    "Archive the pot and purge the entries of a period",
			Category: "Operator",
			Flags:    []cli.Flag{periodFlag},
		},
		{
			Action:   s.retryPayouts,
			Name:     "payout",
			Usage:    "Retry the pending payouts of a period, or of every period with --all",
			Category: "Operator",
			Flags: []cli.Flag{
				periodFlag,
				&cli.BoolFlag{Name: "all", Usage: "Retry every settled period"},
			},
		},
		{
			Action:   s.generateToken,
			Name:     "token",
			Usage:    "Generate an operator token",
			Category: "Operator",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "name", Usage: "Operator name", Required: true},
			},
		},
		{
			Action:      s.startMigrate,
			Name:        "migrate",
			Usage:       "Migrate the database",
			Category:    "Database",
			Description: `Runs every migration newer than the recorded version.`,
		},
	}
}
