package xerr

// 定义了统一的业务错误码
const (
	SuccessCode = 20000 // 通用成功码

	// --- 客户端请求错误系列 (400xx) ---
	InvalidParamsCode      = 40000 // 无效的请求参数
	UnknownFilterCode      = 40001 // 不认识的检索条件
	InconsistentFilterCode = 40002 // 检索条件互相矛盾
	DuplicatePriorityCode  = 40003 // 同一处理版本下优先级重复
	AliasConflictCode      = 40004 // 别名与已有处理版本重名
	UnknownWhichCode       = 40005 // which 参数无效
	UnsupportedFormatCode  = 40006 // 输出格式无效
	MutuallyExclusiveCode  = 40007 // 互斥参数同时给出

	// --- 资源未找到错误系列 (404xx) ---
	NotFoundCode       = 40400 // 通用资源未找到
	UnknownVersionCode = 40401 // 处理版本不存在
	UnknownObjectCode  = 40402 // 对象在该处理版本下没有数据

	// --- 服务器内部错误系列 (500xx) ---
	InternalServerErrorCode = 50000 // 服务器内部通用错误
	DatabaseErrorCode       = 50001 // 数据库操作失败
	StorageErrorCode        = 50002 // 对象存储操作失败（如MinIO）
	MQErrorCode             = 50003 // 消息队列操作失败
	StagingErrorCode        = 50004 // 告警暂存库操作失败
	VersionIntegrityCode    = 50005 // 版本数据完整性被破坏

	// --- 网关超时 (504xx) ---
	QueryTimeoutCode = 50400 // 查询超时
)
