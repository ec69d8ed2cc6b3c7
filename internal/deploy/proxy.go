package deploy

import (
	"context"
	"fmt"

	"github.com/Mohsinsiddi/swapdeploy/internal/config"
	"github.com/ethereum/go-ethereum/common"
	"github.com/lmittmann/w3"
)

// ProxyOpenZeppelinTransparent selects the OpenZeppelin transparent
// upgradeable proxy pattern.
const ProxyOpenZeppelinTransparent = "OpenZeppelinTransparentProxy"

// EIP-1967 storage slots.
var (
	ImplementationSlot = common.HexToHash("0x360894a13ba1a3210667c828492db98dca3e2076cc3735a920a3ca505d382bbc")
	AdminSlot          = common.HexToHash("0xb53127684a568b3173ae13b9f8a6016e243e63b6e8ee1178d6a717850b5d6103")
)

var (
	funcOwner          = w3.MustNewFunc("owner()", "address")
	funcUpgradeAndCall = w3.MustNewFunc("upgradeAndCall(address,address,bytes)", "")
)

// ProxyOptions deploys the contract behind a proxy.
type ProxyOptions struct {
	ProxyContract string // only ProxyOpenZeppelinTransparent is supported
	Owner         string // named account or address owning the proxy admin; default From

	// ViaAdminContract names a ProxyAdmin deployment to create (or reuse) and
	// pass as the proxy's admin. The proxy is then built from
	// config.ProxyDefaults.AdminProxyArtifact, which must keep that address as
	// its admin. When empty the v5 proxy creates its own ProxyAdmin owned by
	// Owner.
	ViaAdminContract string

	Execute *ProxyExecute
}

// ProxyExecute holds the calls made through the proxy on first deploy and
// on upgrade.
type ProxyExecute struct {
	Init      *MethodCall
	OnUpgrade *MethodCall
}

// deployProxy deploys or reuses <name>_Implementation, then deploys
// <name>_Proxy on first run or upgrades it through its ProxyAdmin when the
// implementation changed. The combined record is saved as name: proxy
// address with the implementation ABI.
func (e *Environment) deployProxy(ctx context.Context, name string, opts DeployOptions) (*Deployment, error) {
	po := opts.Proxy
	if po.ProxyContract != ProxyOpenZeppelinTransparent {
		return nil, fmt.Errorf("deploying %s: %w: %q (supported: %s)", name, ErrUnsupportedProxy, po.ProxyContract, ProxyOpenZeppelinTransparent)
	}
	if po.ViaAdminContract != "" && e.Config.Proxy.AdminProxyArtifact == "" {
		return nil, fmt.Errorf("deploying %s via %s: %w", name, po.ViaAdminContract, ErrNoAdminProxy)
	}
	from, err := e.resolveAccount(ctx, opts.From)
	if err != nil {
		return nil, fmt.Errorf("deploying %s: %w", name, err)
	}
	owner := from
	if po.Owner != "" {
		if owner, err = e.resolveAccount(ctx, po.Owner); err != nil {
			return nil, fmt.Errorf("deploying %s: %w", name, err)
		}
	}
	contract := opts.Contract
	if contract == "" {
		contract = name
	}
	implArt, err := e.artifact(contract)
	if err != nil {
		return nil, fmt.Errorf("deploying %s: %w", name, err)
	}

	impl, err := e.deployContract(ctx, name+"_Implementation", creation{
		contract: contract,
		from:     from,
		args:     opts.Args,
		gasLimit: opts.GasLimit,
		fallback: config.GasLimitContractDeploy,
		log:      opts.Log,
		skip:     opts.SkipIfAlreadyDeployed,
		reuse:    true,
	})
	if err != nil {
		return nil, err
	}

	proxyName := name + "_Proxy"
	proxy, ok, err := e.Records.Get(proxyName)
	if err != nil {
		return nil, err
	}
	if ok {
		if live, err := e.isLive(ctx, proxy.Address); err != nil {
			return nil, err
		} else if !live {
			e.Log.Warn().Str("contract", proxyName).Str("address", proxy.Address.Hex()).Msg("recorded proxy has no code, deploying a new one")
			ok = false
		}
	}

	var (
		upgraded bool
		viaAdmin common.Address
	)
	if !ok {
		var initData []byte
		if po.Execute != nil && po.Execute.Init != nil {
			initData, err = implArt.PackMethod(po.Execute.Init.MethodName, po.Execute.Init.Args...)
			if err != nil {
				return nil, fmt.Errorf("deploying %s: encoding initializer: %w", name, err)
			}
		}
		admin, proxyArtifact := owner, e.Config.Proxy.ProxyArtifact
		if po.ViaAdminContract != "" {
			pa, err := e.deployContract(ctx, po.ViaAdminContract, creation{
				contract: e.Config.Proxy.AdminArtifact,
				from:     from,
				args:     []any{owner},
				fallback: config.GasLimitContractDeploy,
				log:      opts.Log,
				reuse:    true,
			})
			if err != nil {
				return nil, err
			}
			admin, viaAdmin = pa.Address, pa.Address
			proxyArtifact = e.Config.Proxy.AdminProxyArtifact
		}
		proxy, err = e.deployContract(ctx, proxyName, creation{
			contract: proxyArtifact,
			from:     from,
			args:     []any{impl.Address, admin, initData},
			fallback: config.GasLimitProxyDeploy,
			log:      opts.Log,
		})
		if err != nil {
			return nil, err
		}
	} else {
		upgraded, err = e.upgradeIfChanged(ctx, name, proxy.Address, impl.Address, owner, implArt.PackMethod, po, opts.Log)
		if err != nil {
			return nil, err
		}
	}

	adminAddr, err := e.proxyAdmin(ctx, proxy.Address)
	if err != nil {
		return nil, err
	}
	if viaAdmin != (common.Address{}) && adminAddr != viaAdmin {
		// Forget the proxy so a corrected artifact deploys a fresh one.
		if err := e.Records.Delete(proxyName); err != nil {
			e.Log.Warn().Err(err).Str("contract", proxyName).Msg("cannot remove proxy record")
		}
		return nil, fmt.Errorf("deploying %s: %w: proxy %s has admin %s, want %s (%s must not create its own ProxyAdmin)",
			name, ErrAdminMismatch, proxy.Address.Hex(), adminAddr.Hex(), viaAdmin.Hex(), e.Config.Proxy.AdminProxyArtifact)
	}

	implAddr := impl.Address
	d := &Deployment{
		Address:         proxy.Address,
		ABI:             implArt.RawABI,
		TransactionHash: proxy.TransactionHash,
		Contract:        implArt.ContractName,
		SourceName:      implArt.SourceName,
		Deployer:        from,
		Args:            impl.Args,
		ArgsData:        impl.ArgsData,
		BytecodeHash:    impl.BytecodeHash,
		BlockNumber:     proxy.BlockNumber,
		GasUsed:         proxy.GasUsed,
		DeployedAt:      proxy.DeployedAt,
		Implementation:  &implAddr,
		Newly:           proxy.Newly || upgraded,
	}
	if adminAddr != (common.Address{}) {
		d.Admin = &adminAddr
	}
	if err := e.Records.Save(name, d); err != nil {
		return nil, fmt.Errorf("recording %s: %w", name, err)
	}
	return d, nil
}

// upgradeIfChanged points the proxy at impl through its ProxyAdmin unless the
// EIP-1967 implementation slot already holds it.
func (e *Environment) upgradeIfChanged(
	ctx context.Context,
	name string,
	proxy, impl, owner common.Address,
	pack func(string, ...any) ([]byte, error),
	po *ProxyOptions,
	log bool,
) (bool, error) {
	current, err := e.readSlotAddress(ctx, proxy, ImplementationSlot)
	if err != nil {
		return false, err
	}
	if current == impl {
		return false, nil
	}

	admin, err := e.proxyAdmin(ctx, proxy)
	if err != nil {
		return false, err
	}
	if admin == (common.Address{}) {
		return false, fmt.Errorf("upgrading %s: proxy %s has no admin in its EIP-1967 slot", name, proxy.Hex())
	}
	var adminOwner common.Address
	if err := e.Backend.CallFunc(ctx, admin, funcOwner, nil, &adminOwner); err != nil {
		return false, fmt.Errorf("upgrading %s: reading ProxyAdmin owner: %w", name, err)
	}
	if adminOwner != owner {
		return false, fmt.Errorf("upgrading %s: %w: ProxyAdmin %s is owned by %s, not %s",
			name, ErrNotAdminOwner, admin.Hex(), adminOwner.Hex(), owner.Hex())
	}

	var callData []byte
	if po.Execute != nil && po.Execute.OnUpgrade != nil {
		callData, err = pack(po.Execute.OnUpgrade.MethodName, po.Execute.OnUpgrade.Args...)
		if err != nil {
			return false, fmt.Errorf("upgrading %s: encoding upgrade call: %w", name, err)
		}
	}
	input, err := funcUpgradeAndCall.EncodeArgs(proxy, impl, callData)
	if err != nil {
		return false, fmt.Errorf("upgrading %s: %w", name, err)
	}
	if log {
		e.Log.Info().Str("contract", name).Str("from", current.Hex()).Str("to", impl.Hex()).
			Msgf("upgrading %q to %s", name, impl.Hex())
	}
	if _, _, err := e.transact(ctx, name+"_Upgrade", owner, &admin, input, 0, config.GasLimitContractCall, log); err != nil {
		return false, fmt.Errorf("upgrading %s: %w", name, err)
	}
	return true, nil
}

// proxyAdmin reads the admin address from the proxy's EIP-1967 admin slot.
func (e *Environment) proxyAdmin(ctx context.Context, proxy common.Address) (common.Address, error) {
	return e.readSlotAddress(ctx, proxy, AdminSlot)
}

func (e *Environment) readSlotAddress(ctx context.Context, addr common.Address, slot common.Hash) (common.Address, error) {
	v, err := e.Backend.StorageAt(ctx, addr, slot)
	if err != nil {
		return common.Address{}, fmt.Errorf("reading slot %s of %s: %w", slot.Hex(), addr.Hex(), err)
	}
	return common.BytesToAddress(v.Bytes()), nil
}
