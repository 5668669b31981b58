package models

// All 返回需要自动迁移的全部模型, 顺序满足外键依赖
func All() []any {
	return []any{
		&BaseProcessingVersion{},
		&ProcessingVersion{},
		&ProcessingVersionAlias{},
		&BaseProcverOfProcver{},
		&RootDiaObject{},
		&DiaObject{},
		&DiaSource{},
		&DiaForcedSource{},
		&HostGalaxy{},
		&IngestWatermark{},
	}
}
