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
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/quantaledger/bridge/config"
	"github.com/quantaledger/bridge/database"
	"github.com/quantaledger/bridge/model"
)

// EnqueueCommandRequest is the producer-facing write contract. The payload is
// stored opaquely; the dispatcher validates it against the command type at
// claim time.
type EnqueueCommandRequest struct {
	TenantID       string            `json:"tenant_id" binding:"required"`
	Service        string            `json:"service"`
	CommandType    model.CommandType `json:"command_type" binding:"required"`
	IdempotencyKey string            `json:"idempotency_key" binding:"required"`
	Payload        json.RawMessage   `json:"payload" binding:"required"`
}

// EnqueueCommand appends one command to the outbox. The insert commits before
// any ledger interaction happens; a duplicate idempotency key within the
// tenant returns the conflict instead of queueing the effect twice.
func (a Api) EnqueueCommand(c *gin.Context) {
	var req EnqueueCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conf, err := config.Fetch()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	cmd, err := a.ds.InsertCommand(c.Request.Context(), &model.OutboxCommand{
		TenantID:       req.TenantID,
		Service:        req.Service,
		CommandType:    req.CommandType,
		IdempotencyKey: req.IdempotencyKey,
		Payload:        req.Payload,
		MaxAttempts:    conf.Dispatcher.MaxAttempts,
	})
	if err != nil {
		if errors.Is(err, database.ErrDuplicateCommand) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, cmd)
}

func (a Api) GetCommand(c *gin.Context) {
	commandID, passed := c.Params.Get("command_id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "command_id is required"})
		return
	}

	cmd, err := a.ds.GetCommand(c.Request.Context(), commandID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "command not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, cmd)
}

func (a Api) GetDeadLetters(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		limit = 50
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	commands, err := a.ds.GetDeadLetteredCommands(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"dead_letters": commands, "count": len(commands)})
}
