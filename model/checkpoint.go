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

package model

import "time"

// ProjectorCheckpoint is the durable cursor marking how far a projector has
// progressed through a channel's event stream. It is monotonically
// non-decreasing and only ever advanced inside the same database transaction
// as the read-model writes it covers.
type ProjectorCheckpoint struct {
	ProjectorName string    `json:"projector_name"`
	ChannelID     string    `json:"channel_id"`
	Position      Ordinate  `json:"position"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// InitialCheckpoint is where a projector that has never run starts:
// block 0, index -1, i.e. before the first event of the first block.
func InitialCheckpoint(projector, channel string) ProjectorCheckpoint {
	return ProjectorCheckpoint{
		ProjectorName: projector,
		ChannelID:     channel,
		Position:      Ordinate{Block: 0, Index: -1},
	}
}
