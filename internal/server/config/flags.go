package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/credport/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
//	-a string      HTTP bind address (e.g. ":8080")
//	-g string      gRPC bind address (e.g. ":50051")
//	-d string      PostgreSQL DSN
//	-m string      deployment mode ("production" or other)
//	-n string      issuing app name
//	-s string      access token secret
//	-rs string     refresh token secret
//	-t int         access token validity, minutes
//	-r int         refresh token validity, minutes
//	-state string  state backend: postgres, s3 or memory
//	-legacy-auth   enable the demo-user bypass (ignored in production)
//
// os.Args is filtered through flagx.FilterArgs first so flags owned by
// other components (-c/-config) do not break parsing.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:],
		[]string{"-a", "-g", "-d", "-m", "-n", "-s", "-rs", "-t", "-r", "-state"},
		"-legacy-auth")

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "HTTP address and port")
	fs.StringVar(&config.EndpointAddrGRPC, "g", config.EndpointAddrGRPC, "gRPC address and port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.Mode, "m", config.Mode, "deployment mode")
	fs.StringVar(&config.AppName, "n", config.AppName, "issuing app name")
	fs.StringVar(&config.AccessSecret, "s", config.AccessSecret, "access token secret")
	fs.StringVar(&config.RefreshSecret, "rs", config.RefreshSecret, "refresh token secret")

	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access token validity (in minutes)")
	refreshTokenValidityDuration := fs.Int("r", int(config.RefreshTokenValidityDuration.Minutes()), "refresh token validity (in minutes)")

	fs.StringVar(&config.StateBackend, "state", config.StateBackend, "state backend: postgres, s3 or memory")
	fs.BoolVar(&config.LegacyAuthBypass, "legacy-auth", config.LegacyAuthBypass, "enable legacy demo auth bypass (non-production only)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
	config.RefreshTokenValidityDuration = time.Duration(*refreshTokenValidityDuration) * time.Minute
}
