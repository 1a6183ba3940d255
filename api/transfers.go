/*
Copyright 2025 Cloak Finance Authors.

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
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	model2 "github.com/cloakfinance/cloak/api/model"
	"github.com/cloakfinance/cloak/model"
)

func (a Api) RecordTransfer(c *gin.Context) {
	var newTransfer model2.RecordTransfer
	if err := c.ShouldBindJSON(&newTransfer); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	if err := newTransfer.ValidateRecordTransfer(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.cloak.ApplyTransfer(c.Request.Context(), newTransfer.ToTransfer())
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// RecordConfidentialTransfer settles the transfer and issues the aggregation
// update in one call. When settlement succeeds but the aggregation request
// cannot be issued, the settled transfer is returned alongside the error so
// the caller knows value has moved.
func (a Api) RecordConfidentialTransfer(c *gin.Context) {
	var newTransfer model2.RecordTransfer
	if err := c.ShouldBindJSON(&newTransfer); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	if err := newTransfer.ValidateRecordTransfer(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if len(newTransfer.EncryptedDelta) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"errors": "encrypted_delta is required for confidential transfers"})
		return
	}

	applied, req, err := a.cloak.ApplyTransferConfidential(c.Request.Context(), newTransfer.ToTransfer(), newTransfer.EncryptedDelta)
	if err != nil {
		if applied != nil {
			c.JSON(http.StatusAccepted, gin.H{"transfer": applied, "error": err.Error()})
			return
		}
		handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"transfer": applied, "computation": req})
}

func (a Api) GetTransfer(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	resp, err := a.cloak.GetTransfer(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) GetTransferBySenderNonce(c *gin.Context) {
	sender, passed := c.Params.Get("sender")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sender is required. pass sender in the route /nonce/:sender/:nonce"})
		return
	}
	nonceStr, passed := c.Params.Get("nonce")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nonce is required. pass nonce in the route /nonce/:sender/:nonce"})
		return
	}
	nonce, err := strconv.ParseUint(nonceStr, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nonce must be an unsigned integer"})
		return
	}

	resp, err := a.cloak.GetTransferBySenderNonce(c.Request.Context(), sender, nonce)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) GetAllTransfers(c *gin.Context) {
	limit, offset := paginationParams(c)
	resp, err := a.cloak.GetAllTransfers(c.Request.Context(), limit, offset)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) DelegateTransfer(c *gin.Context) {
	a.transitionDelegation(c, a.cloak.DelegateTransfer)
}

func (a Api) CommitDelegation(c *gin.Context) {
	a.transitionDelegation(c, a.cloak.CommitDelegation)
}

func (a Api) UndelegateTransfer(c *gin.Context) {
	a.transitionDelegation(c, a.cloak.UndelegateTransfer)
}

func (a Api) IntegrateTransfer(c *gin.Context) {
	a.transitionDelegation(c, a.cloak.IntegrateTransfer)
}

func (a Api) transitionDelegation(c *gin.Context, transition func(context.Context, string) (*model.Transfer, error)) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	resp, err := transition(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) GetDelegationState(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	state, err := a.cloak.GetDelegationState(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transfer_id": id, "delegation_state": state})
}

func (a Api) GetReferralReward(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}
	referral, passed := c.Params.Get("referral")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "referral is required. pass referral in the route /:referral"})
		return
	}

	resp, err := a.cloak.GetReferralReward(c.Request.Context(), id, referral)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) CollectReferralReward(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}
	referral, passed := c.Params.Get("referral")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "referral is required. pass referral in the route /:referral"})
		return
	}

	amount, err := a.cloak.CollectReferralReward(c.Request.Context(), id, referral)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entry_id": id, "referral": referral, "collected": amount})
}
