// Package config provides configuration management for the heart-rate relay.
//
// Configuration is loaded from environment variables using the env package.
// An optional JSON config file (file_path, listen_addr, listen_port) read
// through viper sits below the environment. Defaults reproduce the classic
// deployment: localhost:2548 backed by heartrate.txt in the working
// directory; the file path is made absolute at load time.
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("relay will listen on %s\n", cfg.GetHTTPAddr())
package config
