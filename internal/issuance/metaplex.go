package issuance

import (
	"context"
	"fmt"

	dErrors "docgate/pkg/domain-errors"
)

// MetaplexMinter mints Metaplex NFTs for title-like documents.
type MetaplexMinter struct {
	relay *RelayClient
}

func NewMetaplexMinter(relay *RelayClient) *MetaplexMinter {
	return &MetaplexMinter{relay: relay}
}

type mintAttribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

type mintBody struct {
	Name       string          `json:"name"`
	Symbol     string          `json:"symbol"`
	Owner      string          `json:"owner"`
	Attributes []mintAttribute `json:"attributes"`
}

type mintResponse struct {
	MintAddress string `json:"mint_address"`
	Signature   string `json:"signature"`
}

func (m *MetaplexMinter) Issue(ctx context.Context, req Request) (Receipt, error) {
	mint, ok := req.(NFTMint)
	if !ok {
		return Receipt{}, dErrors.New(dErrors.CodeInternal, fmt.Sprintf("minter cannot issue %s", req.Kind()))
	}
	body := mintBody{
		Name:   mint.Name,
		Symbol: mint.Symbol,
		Owner:  mint.Owner.String(),
		Attributes: []mintAttribute{
			{TraitType: "document_id", Value: mint.DocumentID.String()},
			{TraitType: "document_type", Value: mint.DocumentType.String()},
			{TraitType: "file_hash", Value: mint.FileHash},
		},
	}
	var out mintResponse
	if err := m.relay.post(ctx, "/v1/nft/mint", mint.DocumentID.String(), body, &out); err != nil {
		return Receipt{}, err
	}
	if out.MintAddress == "" {
		return Receipt{}, dErrors.New(dErrors.CodeIssuanceFailed, "issuance relay returned no mint address")
	}
	return Receipt{Kind: KindNFTMint, ReferenceID: out.MintAddress, TransactionRef: out.Signature}, nil
}
