package http

import (
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"

	"github.com/layer-3/wconnect"
	"github.com/layer-3/wconnect/explorer"
	"github.com/layer-3/wconnect/txpipe"
)

// WalletHandlers contains HTTP handlers for wallet endpoints
type WalletHandlers struct {
	client   *wconnect.Client
	pipeline *txpipe.Pipeline
	explorer *explorer.Client
	web3URL  string
}

// NewWalletHandlers creates new wallet handlers
func NewWalletHandlers(client *wconnect.Client, exp *explorer.Client, web3URL string) *WalletHandlers {
	return &WalletHandlers{
		client:   client,
		pipeline: txpipe.New(client),
		explorer: exp,
		web3URL:  web3URL,
	}
}

// Pairing returns the pairing URI the wallet scans
func (h *WalletHandlers) Pairing(c *gin.Context) {
	uri, err := h.client.ConnectionString(c.Request.Context())
	if err != nil {
		c.JSON(sessionErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"uri": uri})
}

// PairingQR renders the pairing URI as a QR code PNG
func (h *WalletHandlers) PairingQR(c *gin.Context) {
	uri, err := h.client.ConnectionString(c.Request.Context())
	if err != nil {
		c.JSON(sessionErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	png, err := qrcode.Encode(uri, qrcode.Medium, 256)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render QR code"})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// Session returns the current session snapshot. Key material never
// leaves the process; only its fingerprint is reported.
func (h *WalletHandlers) Session(c *gin.Context) {
	session, err := h.client.SessionSnapshot(c.Request.Context())
	if err != nil {
		c.JSON(sessionErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"connected":       session.Connected,
		"chain_id":        session.ChainID,
		"accounts":        session.Accounts,
		"bridge":          session.Bridge,
		"key_fingerprint": session.Key.Fingerprint(),
		"client_id":       session.ClientID,
		"client_meta":     session.ClientMeta,
		"peer_id":         session.PeerID,
		"peer_meta":       session.PeerMeta,
		"handshake_topic": session.HandshakeTopic,
	})
}

// EnsureSession blocks until the wallet approves or the request fails
func (h *WalletHandlers) EnsureSession(c *gin.Context) {
	accounts, chainID, err := h.client.EnsureSession(c.Request.Context())
	if err != nil {
		c.JSON(sessionErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"accounts": accounts,
		"chain_id": chainID,
	})
}

// PersonalSign asks the wallet to sign a message
func (h *WalletHandlers) PersonalSign(c *gin.Context) {
	var req struct {
		Message string `json:"message" binding:"required"`
		Address string `json:"address"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	var address common.Address
	if req.Address != "" {
		if !common.IsHexAddress(req.Address) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid address"})
			return
		}
		address = common.HexToAddress(req.Address)
	} else {
		accounts, _, err := h.client.EnsureSession(c.Request.Context())
		if err != nil {
			c.JSON(sessionErrorStatus(err), gin.H{"error": err.Error()})
			return
		}
		address = accounts[0]
	}

	sig, err := h.client.PersonalSign(c.Request.Context(), req.Message, address)
	if err != nil {
		c.JSON(sessionErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"signature": hexutil.Encode(sig)})
}

// Transfer builds a native transfer, has the wallet sign it and
// broadcasts it
func (h *WalletHandlers) Transfer(c *gin.Context) {
	var req txpipe.Transfer
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if req.Web3APIURL == "" {
		req.Web3APIURL = h.web3URL
	}

	params, err := txpipe.BuildTransfer(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.sendTx(c, req.TxCommon, params)
}

// TokenTransfer builds an ERC-20 transfer call
func (h *WalletHandlers) TokenTransfer(c *gin.Context) {
	h.tokenCall(c, txpipe.BuildContractTransfer)
}

// TokenApprove builds an ERC-20 approve call
func (h *WalletHandlers) TokenApprove(c *gin.Context) {
	h.tokenCall(c, txpipe.BuildContractApproval)
}

func (h *WalletHandlers) tokenCall(c *gin.Context, build func(txpipe.ContractCall) (*txpipe.TxParams, error)) {
	var req txpipe.ContractCall
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if req.Web3APIURL == "" {
		req.Web3APIURL = h.web3URL
	}

	params, err := build(req)
	if err != nil {
		statusCode := http.StatusBadRequest
		if errors.Is(err, txpipe.ErrWeb3APIRequired) {
			statusCode = http.StatusPreconditionFailed
		}
		c.JSON(statusCode, gin.H{"error": err.Error()})
		return
	}
	h.sendTx(c, req.TxCommon, params)
}

func (h *WalletHandlers) sendTx(c *gin.Context, req txpipe.TxCommon, params *txpipe.TxParams) {
	from, err := req.FromAddress()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hash, err := h.pipeline.Send(c.Request.Context(), req.Web3APIURL, from, params)
	if err != nil {
		c.JSON(sessionErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tx_hash": hash.Hex()})
}

// Tokens lists the token balances of an address via BlockScout
func (h *WalletHandlers) Tokens(c *gin.Context) {
	address := c.Query("address")
	if address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "address is required"})
		return
	}

	tokens, err := h.explorer.Tokens(c.Request.Context(), address)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Explorer query failed"})
		return
	}
	c.JSON(http.StatusOK, tokens)
}

// TokenTransfers lists the token transfer history of an address
func (h *WalletHandlers) TokenTransfers(c *gin.Context) {
	address := c.Query("address")
	if address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "address is required"})
		return
	}

	option := explorer.ByAddress
	contract := c.Query("contract")
	if contract != "" {
		option = explorer.ByAddressAndContract
	}

	transfers, err := h.explorer.TokenTransfers(c.Request.Context(), address, contract, option)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Explorer query failed"})
		return
	}
	c.JSON(http.StatusOK, transfers)
}

// Map specific errors to appropriate status codes
func sessionErrorStatus(err error) int {
	switch {
	case errors.Is(err, wconnect.ErrPeerRejected):
		return http.StatusForbidden
	case errors.Is(err, wconnect.ErrPeerDisconnected), errors.Is(err, wconnect.ErrNoSession):
		return http.StatusConflict
	case errors.Is(err, wconnect.ErrRequestInFlight):
		return http.StatusTooManyRequests
	case errors.Is(err, wconnect.ErrClientClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
