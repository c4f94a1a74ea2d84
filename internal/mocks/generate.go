package mocks

//go:generate mockery --name Transport --srcpkg github.com/aevon-lab/segment-relay/internal/dispatch --output ./dispatch --outpkg dispatchmocks
//go:generate mockery --name ActorStore --srcpkg github.com/aevon-lab/segment-relay/internal/core/storage --output ./storage --outpkg storagemocks
