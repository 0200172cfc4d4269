/*
Copyright 2025 Quanta Ledger Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quantaledger/bridge/config"
)

// Health reports read-model staleness: the age of the projector checkpoint
// against the configured threshold. A stale checkpoint flips the endpoint to
// 503 so load balancers stop serving reads that have fallen behind the
// ledger.
func (a Api) Health(c *gin.Context) {
	conf, err := config.Fetch()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	age, err := a.ds.CheckpointFreshness(c.Request.Context(), conf.Projector.Name, conf.Ledger.Channel)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}

	threshold := time.Duration(conf.Projector.StalenessThresholdSec) * time.Second
	body := gin.H{
		"projector":           conf.Projector.Name,
		"channel":             conf.Ledger.Channel,
		"checkpoint_age":      age.String(),
		"staleness_threshold": threshold.String(),
	}
	if age > threshold {
		body["status"] = "stale"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	body["status"] = "healthy"
	c.JSON(http.StatusOK, body)
}
