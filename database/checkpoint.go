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

package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/quantaledger/bridge/model"
)

// GetCheckpoint loads the projector's durable cursor. A projector that has
// never run gets the initial (0, -1) position, meaning "before the first
// event of the first block"; no row is created until the first event lands.
func (d Datasource) GetCheckpoint(ctx context.Context, projector, channel string) (*model.ProjectorCheckpoint, error) {
	cp := model.ProjectorCheckpoint{ProjectorName: projector, ChannelID: channel}
	err := d.Conn.QueryRowContext(ctx, `
		SELECT block_number, event_index, updated_at
		FROM bridge.projector_checkpoints
		WHERE projector_name = $1 AND channel_id = $2
	`, projector, channel).Scan(&cp.Position.Block, &cp.Position.Index, &cp.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		initial := model.InitialCheckpoint(projector, channel)
		return &initial, nil
	}
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

// CheckpointFreshness reports how long ago the checkpoint last advanced.
// The health endpoint compares this against the staleness threshold. A
// projector with no checkpoint row yet reports zero age rather than
// failing health before the first event arrives.
func (d Datasource) CheckpointFreshness(ctx context.Context, projector, channel string) (time.Duration, error) {
	var updatedAt time.Time
	err := d.Conn.QueryRowContext(ctx, `
		SELECT updated_at FROM bridge.projector_checkpoints
		WHERE projector_name = $1 AND channel_id = $2
	`, projector, channel).Scan(&updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return time.Since(updatedAt), nil
}
