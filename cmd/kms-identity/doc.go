/*
Command kms-identity resolves, inspects and uses ledger identities whose
private keys live in a remote key-management service.

	kms-identity --config cfg.yaml principal --identity ledger
	kms-identity --config cfg.yaml pubkey --identity ledger
	kms-identity --config cfg.yaml sign --identity ledger content.json
	kms-identity --config cfg.yaml serve
*/
package main
