package backend

import (
	_ "github.com/nanochat/nanochat/ml/backend/host"
)
