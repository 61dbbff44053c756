package solana

import (
	"testing"

	"github.com/gagliardetto/solana-go"

	x402 "github.com/postmanode/x402-solana-go"
)

var (
	testOwner = solana.MustPublicKeyFromBase58("9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin")
	testMint  = solana.MustPublicKeyFromBase58("4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU")
	testPayer = solana.MustPublicKeyFromBase58("Fg6PaFpoGXkYsidMpWTK6W2BeZ7FEfcYkg476zPFsLnS")
)

func TestBuildSetComputeUnitLimitInstruction(t *testing.T) {
	inst := BuildSetComputeUnitLimitInstruction(200_000)

	if !inst.ProgramID().Equals(ComputeBudgetProgramID) {
		t.Errorf("program = %s, want compute budget program", inst.ProgramID())
	}

	data, err := inst.Data()
	if err != nil {
		t.Fatalf("Data failed: %v", err)
	}
	if len(data) != 5 {
		t.Fatalf("data length = %d, want 5", len(data))
	}
	if data[0] != 2 {
		t.Errorf("discriminator = %d, want 2", data[0])
	}
	units := uint32(data[1]) | uint32(data[2])<<8 | uint32(data[3])<<16 | uint32(data[4])<<24
	if units != 200_000 {
		t.Errorf("units = %d, want 200000", units)
	}
}

func TestBuildSetComputeUnitPriceInstruction(t *testing.T) {
	inst := BuildSetComputeUnitPriceInstruction(10_000)

	data, err := inst.Data()
	if err != nil {
		t.Fatalf("Data failed: %v", err)
	}
	if len(data) != 9 {
		t.Fatalf("data length = %d, want 9", len(data))
	}
	if data[0] != 3 {
		t.Errorf("discriminator = %d, want 3", data[0])
	}
	var price uint64
	for i := 0; i < 8; i++ {
		price |= uint64(data[i+1]) << (8 * i)
	}
	if price != 10_000 {
		t.Errorf("price = %d, want 10000", price)
	}
}

func TestDeriveAssociatedTokenAddress(t *testing.T) {
	ata, err := DeriveAssociatedTokenAddress(testOwner, testMint)
	if err != nil {
		t.Fatalf("DeriveAssociatedTokenAddress failed: %v", err)
	}

	want, _, err := solana.FindAssociatedTokenAddress(testOwner, testMint)
	if err != nil {
		t.Fatalf("FindAssociatedTokenAddress failed: %v", err)
	}
	if !ata.Equals(want) {
		t.Errorf("ata = %s, want %s", ata, want)
	}
}

func TestBuildCreateIdempotentATAInstruction(t *testing.T) {
	inst, err := BuildCreateIdempotentATAInstruction(testPayer, testOwner, testMint)
	if err != nil {
		t.Fatalf("BuildCreateIdempotentATAInstruction failed: %v", err)
	}

	if !inst.ProgramID().Equals(solana.SPLAssociatedTokenAccountProgramID) {
		t.Errorf("program = %s, want associated token program", inst.ProgramID())
	}

	data, err := inst.Data()
	if err != nil {
		t.Fatalf("Data failed: %v", err)
	}
	if len(data) != 1 || data[0] != 1 {
		t.Errorf("data = %v, want CreateIdempotent discriminator [1]", data)
	}

	accounts := inst.Accounts()
	if len(accounts) != 6 {
		t.Fatalf("accounts = %d, want 6", len(accounts))
	}
	if !accounts[0].PublicKey.Equals(testPayer) || !accounts[0].IsSigner {
		t.Error("first account must be the signing payer")
	}
}

func TestBuildTransferCheckedInstruction(t *testing.T) {
	source, _ := DeriveAssociatedTokenAddress(testOwner, testMint)
	dest, _ := DeriveAssociatedTokenAddress(testPayer, testMint)

	inst := BuildTransferCheckedInstruction(source, testMint, dest, testOwner, 10_000, 6)

	if !inst.ProgramID().Equals(solana.TokenProgramID) {
		t.Errorf("program = %s, want token program", inst.ProgramID())
	}

	data, err := inst.Data()
	if err != nil {
		t.Fatalf("Data failed: %v", err)
	}
	if len(data) != 10 {
		t.Fatalf("data length = %d, want 10", len(data))
	}
	if data[0] != 12 {
		t.Errorf("discriminator = %d, want 12 (TransferChecked)", data[0])
	}
	if data[9] != 6 {
		t.Errorf("decimals = %d, want 6", data[9])
	}
}

func TestClusterRPCURL(t *testing.T) {
	url, err := ClusterRPCURL(x402.NetworkDevnet)
	if err != nil {
		t.Fatalf("ClusterRPCURL failed: %v", err)
	}
	if url != x402.Devnet.RPCURL {
		t.Errorf("url = %s, want devnet default", url)
	}

	if _, err := ClusterRPCURL("base"); err == nil {
		t.Error("unknown network should fail")
	}
}
