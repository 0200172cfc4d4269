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
	"github.com/gin-gonic/gin"

	"github.com/quantaledger/bridge/database"
)

type Api struct {
	ds     database.IDataSource
	router *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router

	router.POST("/commands", a.EnqueueCommand)
	router.GET("/commands/:command_id", a.GetCommand)
	router.GET("/dead-letters", a.GetDeadLetters)

	router.GET("/balances/:wallet_id", a.GetBalance)
	router.GET("/wallets/:wallet_id/transactions", a.GetTransactions)
	router.GET("/countries/:code", a.GetCountryStat)

	router.GET("/health", a.Health)
	return a.router
}

func NewAPI(ds database.IDataSource) *Api {
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{ds: ds, router: r}
}
