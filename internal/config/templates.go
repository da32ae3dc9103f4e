package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Orderflow Signals Configuration
# Kite credentials are read from the KITE_API_KEY and KITE_ACCESS_TOKEN
# environment variables and are never stored in this file.

[[instruments]]
symbol = "NIFTY 50"
token = 256265
name = "Nifty 50 Index"

[[instruments]]
symbol = "NIFTY BANK"
token = 260105
name = "Nifty Bank Index"

[session]
# Minutes from midnight exchange time
pre_open_start_minute = 540   # 09:00
open_minute = 555             # 09:15
close_minute = 930            # 15:30
timezone = "Asia/Kolkata"
# 0=Sunday .. 6=Saturday
weekdays = [1, 2, 3, 4, 5]

[engine]
trend_scale = 1.0
moderate_scale = 8.0
moderate_cap = 60.0

[broadcast]
interval = "5s"
fetch_timeout = "3s"
subscriber_buffer = 16

[supervisor]
interval = "10m"
grace_intervals = 2
max_restarts = 3
health_addr = "127.0.0.1:8642"

[logging]
# trace, debug, info, warn, error
level = "info"
console = true
file = true
max_size_mb = 10
max_backups = 5
max_age_days = 30

[store]
# Defaults to <config dir>/signals.db when empty
path = ""

[notify]
enabled = false

[notify.webhook]
enabled = false
url = ""

[notify.telegram]
enabled = false
bot_token = ""
chat_id = ""
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return fmt.Errorf("config file not found, created template at %s", path)
}
